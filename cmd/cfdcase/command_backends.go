package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourceplane/cfdcase/internal/mesher"
	"github.com/sourceplane/cfdcase/internal/model"
)

var backendsCmd = &cobra.Command{
	Use:     "backends",
	Aliases: []string{"backend"},
	Short:   "List mesh backends and the executables they run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listBackends()
	},
}

func registerBackendsCommand(root *cobra.Command) {
	root.AddCommand(backendsCmd)

	backendsCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show the full command line")
}

func listBackends() error {
	sp := newPlanner()
	fmt.Println("Mesh backends:")
	for _, name := range model.MeshBackends {
		b, err := mesher.For(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s tool=%s executable=%s\n", name, b.Tool(), sp.Resolve(b.Tool()))
		if longFormat {
			cmd := b.Command(sp.Resolve)
			fmt.Printf("             run: %s\n", cmd)
			for _, env := range cmd.Env {
				fmt.Printf("             env: %s\n", env)
			}
		}
	}
	return nil
}
