// Command ssgi runs the screen-space global illumination pipeline on
// synthetic or EXR G-buffers and exports the results.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "ssgi"
	app.Usage = "screen-space global illumination on the CPU reference pipeline"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "run the pipeline over a sequence of frames",
			Description: `
Render the built-in corner scene (or load a G-buffer EXR written by the
gbuffer command) and run the SSGI pipeline over it for the requested number
of frames. The camera orbits the scene between frames so the temporal pass
sees motion. The last composited frame is written as an EXR file and,
optionally, as a downscaled PNG preview.`,
			ArgsUsage: " ",
			Flags:     append(sceneFlags(), renderFlags()...),
			Action:    RenderFrames,
		},
		{
			Name:  "gbuffer",
			Usage: "write the synthetic scene G-buffer to an EXR file",
			Description: `
Ray cast the built-in corner scene and store colour (R, G, B, A), device
depth (Z), world normals (N.X, N.Y, N.Z) and motion (V.X, V.Y) as EXR
channels. The file can be fed back to render with --input.`,
			Flags: append(sceneFlags(),
				cli.StringFlag{
					Name:  "out, o",
					Value: "gbuffer.exr",
					Usage: "EXR filename for the G-buffer",
				},
			),
			Action: WriteGBuffer,
		},
		{
			Name:  "shaders",
			Usage: "compile the WGSL kernels to SPIR-V",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "spirv",
					Usage: "directory for the .spv files",
				},
			},
			Action: CompileShaders,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func sceneFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 640,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 360,
			Usage: "frame height",
		},
		cli.Float64Flag{
			Name:  "orbit",
			Value: 0,
			Usage: "initial camera orbit angle in degrees",
		},
		cli.BoolFlag{
			Name:  "standard-depth",
			Usage: "use standard depth (near 0, far 1) instead of reversed depth",
		},
	}
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "input, i",
			Usage: "G-buffer EXR to process instead of the synthetic scene",
		},
		cli.IntFlag{
			Name:  "frames, n",
			Value: 8,
			Usage: "number of frames to process",
		},
		cli.Float64Flag{
			Name:  "orbit-step",
			Value: 0.5,
			Usage: "camera orbit per frame in degrees",
		},
		cli.StringFlag{
			Name:  "debug, d",
			Value: "final",
			Usage: "debug view: Final, RawTrace, Denoised, History, Iterations, HitUV, RayDirection, DepthPyramid, WorldPosition, RayStart, DepthCheck or 0-10",
		},
		cli.StringFlag{
			Name:  "order",
			Value: "denoise-first",
			Usage: "pass order: denoise-first or temporal-first",
		},
		cli.IntFlag{
			Name:  "resize-at",
			Value: -1,
			Usage: "frame at which the buffers shrink by --resize-scale (negative disables)",
		},
		cli.Float64Flag{
			Name:  "resize-scale",
			Value: 0.75,
			Usage: "buffer scale applied at --resize-at",
		},
		cli.BoolFlag{
			Name:  "gpu",
			Usage: "run the passes as compute kernels on the default adapter",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: 0,
			Usage: "worker goroutines (0 uses GOMAXPROCS)",
		},
		cli.IntFlag{
			Name:  "iterations",
			Value: 64,
			Usage: "maximum Hi-Z steps per ray",
		},
		cli.Float64Flag{
			Name:  "intensity",
			Value: 10,
			Usage: "indirect light intensity",
		},
		cli.Float64Flag{
			Name:  "thickness",
			Value: 2,
			Usage: "assumed surface thickness in world units",
		},
		cli.Float64Flag{
			Name:  "ray-length",
			Value: 100,
			Usage: "ray length in world units",
		},
		cli.IntFlag{
			Name:  "radius",
			Value: 2,
			Usage: "denoise kernel radius in pixels",
		},
		cli.Float64Flag{
			Name:  "history-weight",
			Value: 0.9,
			Usage: "temporal history weight in [0, 1)",
		},
		cli.BoolFlag{
			Name:  "modulate",
			Usage: "modulate the scene colour instead of adding to it",
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: "frame.exr",
			Usage: "EXR filename for the last composited frame",
		},
		cli.StringFlag{
			Name:  "preview, p",
			Usage: "optional PNG filename for a tone-mapped preview",
		},
		cli.IntFlag{
			Name:  "preview-width",
			Value: 0,
			Usage: "preview width in pixels (0 keeps the frame width)",
		},
	}
}
