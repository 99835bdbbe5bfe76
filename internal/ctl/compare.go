package ctl

import (
	"fmt"
	"os"

	"github.com/ipsvault/ips/internal/server/similarity"
	"github.com/spf13/cobra"
)

func newCompareCodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare-code <file1> <file2>",
		Short: "Score the similarity of two source files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "similarity: %d%%\n", similarity.Code(string(a), string(b)))
			return nil
		},
	}
}

func newCompareImagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare-images <image1> <image2>",
		Short: "Score the perceptual similarity of two images",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := similarity.CompareFiles(args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "similarity: %d%%\n", score)
			return nil
		},
	}
}
