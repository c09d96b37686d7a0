package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/caseflow/config"
)

var ProfileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage session profiles",
}

var profileNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a profile from the template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(configPath())
		if err != nil {
			return err
		}
		p, err := store.NewProfile(args[0])
		if err != nil {
			return err
		}
		if err := store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created profile %q in %s (task %s)\n", p.Name, store.Path(), p.Task)
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(configPath())
		if err != nil {
			return err
		}
		last := store.Last()
		for _, n := range store.Names() {
			mark := " "
			if n == last {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, n)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a profile, or the template without a name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(configPath())
		if err != nil {
			return err
		}
		p := store.Template()
		if len(args) == 1 {
			if p, err = store.Get(args[0]); err != nil {
				return err
			}
		}
		b, err := yaml.Marshal(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := config.Load(configPath())
		if err != nil {
			return err
		}
		if _, err := store.Get(args[0]); err != nil {
			return err
		}
		store.Delete(args[0])
		return store.Save()
	},
}

func init() {
	ProfileCmd.AddCommand(profileNewCmd, profileListCmd, profileShowCmd, profileDeleteCmd)
}
