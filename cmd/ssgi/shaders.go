package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gogpu/ssgi/shader"
)

// CompileShaders compiles every kernel to SPIR-V and writes one .spv file
// per kernel.
func CompileShaders(ctx *cli.Context) error {
	setupLogging(ctx)

	dir := ctx.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Kernel", "Workgroup", "SPIR-V", "File"})

	var failed int
	for _, k := range shader.Kernels() {
		wg := fmt.Sprintf("%dx%dx%d", k.Workgroup[0], k.Workgroup[1], k.Workgroup[2])
		spirv, err := k.Compile()
		if err != nil {
			logger.Error("compile failed", "kernel", k.Name, "err", err)
			table.Append([]string{k.Name, wg, "error", ""})
			failed++
			continue
		}
		path := filepath.Join(dir, k.Name+".spv")
		if err := os.WriteFile(path, spirv, 0o644); err != nil {
			return err
		}
		table.Append([]string{k.Name, wg, fmt.Sprintf("%d bytes", len(spirv)), path})
	}

	table.Render()
	fmt.Fprint(os.Stdout, buf.String())
	if failed > 0 {
		return fmt.Errorf("%d of %d kernels failed to compile", failed, len(shader.Kernels()))
	}
	return nil
}
