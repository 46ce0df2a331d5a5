package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ouroboros/internal/ouro/config"
)

var initGlobal bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.toml",
	Long: `Scaffold a starter Ouroboros config file.

Without --global, writes <project-root>/.ouroboros/config.toml. With
--global, writes <HOME>/.ouroboros/config.toml instead. An existing file
is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if initGlobal {
			p, err := config.GlobalConfigPath()
			if err != nil {
				return err
			}
			path = p
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			path = config.ProjectConfigPath(cwd)
		}

		if err := config.WriteDefaultConfig(path); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("%s wrote %s\n", color.GreenString("✓"), path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "write the global config instead of the project config")
}
