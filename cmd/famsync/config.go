package main

import (
	"fmt"
	"os"

	"github.com/mschirtzinger/famtasks/internal/config"
	"github.com/mschirtzinger/famtasks/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create and inspect configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to ~/.famsync/config.yaml, or to
./.famsync/config.yaml with --project. Existing files are kept unless
--force is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		project, _ := cmd.Flags().GetBool("project")
		force, _ := cmd.Flags().GetBool("force")
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		family, _ := cmd.Flags().GetString("family")

		path := config.GlobalConfigPath()
		if project {
			path = config.ProjectConfigPath()
		}
		if configPath != "" {
			path = configPath
		}

		cfg := config.DefaultConfig()
		cfg.User = config.UserConfig{ID: userID, Name: name, FamilyID: family}
		if err := config.Write(path, cfg, force); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		if userID == "" {
			fmt.Printf("   Set user.id before syncing (or pass --user)\n")
		}
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the global file, the
project file and FAMSYNC_* environment variables.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		data, err := config.Marshal(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		_, _ = os.Stdout.Write(data)
	},
}

func init() {
	configInitCmd.Flags().Bool("project", false, "write ./.famsync/config.yaml instead of the global file")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configInitCmd.Flags().String("user", "", "user id to sync as")
	configInitCmd.Flags().String("name", "", "display name of the user")
	configInitCmd.Flags().String("family", "", "family id of the user")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
