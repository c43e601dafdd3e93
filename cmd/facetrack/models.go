package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dudu/facetrack/internal/inference"
)

var modelsCmd = &cobra.Command{
	Use:   "models [model.onnx...]",
	Short: "Print the inputs and outputs of ONNX models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(args) == 0 {
			args = []string{env.DetectorModel, env.LandmarkModel}
		}
		return runModels(args)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(paths []string) error {
	if err := inference.Initialize(env.ORTLibrary); err != nil {
		return err
	}
	defer inference.Shutdown()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	for _, path := range paths {
		info, err := inference.Describe(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t(producer: %s)\n", info.Path, info.Producer)
		for _, in := range info.Inputs {
			fmt.Fprintf(w, "  input\t%s\t%v\t%s\n", in.Name, in.Shape, in.Type)
		}
		for _, out := range info.Outputs {
			fmt.Fprintf(w, "  output\t%s\t%v\t%s\n", out.Name, out.Shape, out.Type)
		}
	}
	return nil
}
