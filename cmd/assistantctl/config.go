package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-assistant/internal/config"
)

func configCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration and validate the API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, s := g.loadSettings()

			for _, d := range config.Domains {
				fmt.Printf("[%s] %s\n", d, store.Path(d))
				vals := store.Values(d)
				for _, k := range slices.Sorted(maps.Keys(vals)) {
					v := vals[k]
					if strings.Contains(k, "api_key") && v != "" {
						v = config.MaskKey(v)
					}
					fmt.Printf("  %-20s = %s\n", k, v)
				}
			}

			fmt.Println()
			if !s.Assistant.Enabled {
				fmt.Println("Assistant: disabled")
			} else {
				fmt.Println("Assistant: enabled")
			}
			if err := config.ValidateAPIKey(s.OpenAI.APIKey); err != nil {
				fmt.Println("API key:  ", err)
				return nil
			}
			fmt.Println("API key:   valid", config.MaskKey(s.OpenAI.APIKey))
			return nil
		},
	}
}
