package main

import (
	"fmt"

	"github.com/jrsteele09/movie-ratings/internal/config"
	"github.com/jrsteele09/movie-ratings/users"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage user roles",
}

var roleSetCmd = &cobra.Command{
	Use:   "set <auth-user-id> <user|admin>",
	Short: "Set the role of an account",
	Long: `Set the role of an account using the Supabase service key. This is how the
first administrator is created on a hosted project.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.New()
		if c.GetBackend() != config.BackendSupabase {
			return fmt.Errorf("role set needs the %s backend, the %s backend lives in the server process", config.BackendSupabase, config.BackendMemory)
		}
		role, err := users.ParseRole(args[1])
		if err != nil {
			return err
		}
		client, err := newSupabaseClient(c)
		if err != nil {
			return err
		}
		service, err := client.ServiceData()
		if err != nil {
			return err
		}
		if err := users.NewDataRepo(service).UpdateRole(cmd.Context(), args[0], role); err != nil {
			return err
		}
		log.Info().Str("auth_user_id", args[0]).Str("role", string(role)).Msg("role updated")
		return nil
	},
}

func init() {
	roleCmd.AddCommand(roleSetCmd)
}
