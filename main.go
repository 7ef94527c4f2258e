// Copyright (c) 2025 The Minicc Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"minicc/compile"
)

var (
	inputPath  string
	inputText  string
	outputPath string
	flagE      bool
	flagG      bool
)

var rootCmd = &cobra.Command{
	Use:           "minicc",
	Short:         "A compiler for a subset of C targeting x86-64 System V",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputPath == "" {
			return fmt.Errorf("output file is not specified (-o)")
		}
		if inputPath != "" && inputText != "" {
			return fmt.Errorf("-i and -I are mutually exclusive")
		}
		if flagG && !flagE {
			return fmt.Errorf("-g is only meaningful together with -E")
		}
		opts := compile.Options{
			PreprocessOnly:   flagE,
			ImportPredefined: flagG,
		}
		if inputText != "" || len(args) > 0 {
			// -I consumes the remainder of argv as the program text
			text := inputText
			if len(args) > 0 {
				text = strings.Join(append([]string{text}, args...), " ")
			}
			return compile.CompileBytes([]byte(text), outputPath, opts)
		}
		if inputPath == "" {
			return fmt.Errorf("input is not specified (-i or -I)")
		}
		return compile.CompileFile(inputPath, outputPath, opts)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "path to the input source file")
	rootCmd.Flags().StringVarP(&inputText, "text", "I", "", "use the argument as the input program")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "path for the output file")
	rootCmd.Flags().BoolVarP(&flagE, "preprocess", "E", false, "emit preprocessed source instead of assembly")
	rootCmd.Flags().BoolVarP(&flagG, "gcc-macros", "g", false, "import the target's predefined macros (with -E)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		if !strings.HasSuffix(err.Error(), "\n") {
			fmt.Fprintln(os.Stderr)
		}
		os.Exit(1)
	}
}
