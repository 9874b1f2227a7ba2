package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/stevedomin/termtable"

	"github.com/skypro1111/storyreel/internal/style"
)

func newStylesCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the available art styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := style.Builtin()
			source := "built-in"

			if !offline {
				remote, err := a.client.Styles(cmd.Context())
				if err != nil {
					a.logger.Warn("Using built-in style list",
						slog.String("error", err.Error()),
					)
				} else {
					catalog = style.Catalog{Default: style.Key(remote.Default), Styles: remote.Styles}
					source = a.client.BaseURL()
				}
			}

			t := termtable.NewTable(nil, &termtable.TableOptions{
				Padding:      2,
				UseSeparator: false,
			})
			t.SetHeader([]string{"Key", "Name", "Default"})
			for _, s := range catalog.Styles {
				def := ""
				if s.Key == catalog.Default {
					def = "*"
				}
				t.AddRow([]string{string(s.Key), s.Name, def})
			}

			fmt.Printf("\nArt styles (%s)\n\n", source)
			fmt.Println(t.Render())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Do not ask the service, print the built-in list")

	return cmd
}
