package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/moviecatalog/internal/client"
	"github.com/sakif/moviecatalog/internal/model"
)

type options struct {
	server    string
	stateFile string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "moviectl",
		Short:         "Manage your movie catalog from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("MOVIECTL_SERVER")
	if server == "" {
		server = "http://localhost:5000"
	}
	home, _ := os.UserHomeDir()

	root.PersistentFlags().StringVar(&opts.server, "server", server, "API base URL (env MOVIECTL_SERVER)")
	root.PersistentFlags().StringVar(&opts.stateFile, "state", filepath.Join(home, ".moviectl.json"), "session file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "per-request timeout")

	root.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		listCmd(opts),
		searchCmd(opts),
		addCmd(opts),
		favCmd(opts),
		rmCmd(opts),
	)
	return root
}

func loginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Log in, creating the user on first use",
		Args:  cobra.ExactArgs(1),
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error {
			if err := st.Login(ctx, args[0]); err != nil {
				return err
			}
			if err := st.SyncFavorites(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", st.Message, st.User.Username)
			return nil
		}),
	}
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the current user",
		Args:  cobra.NoArgs,
		RunE: withState(opts, func(_ context.Context, cmd *cobra.Command, st *client.State, _ []string) error {
			st.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func listCmd(opts *options) *cobra.Command {
	var favoritesOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your movies, newest first",
		Args:  cobra.NoArgs,
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, _ []string) error {
			if err := st.Refresh(ctx); err != nil {
				return err
			}
			movies := st.Movies
			if favoritesOnly {
				movies = nil
				for _, m := range st.Movies {
					if m.IsFavorite {
						movies = append(movies, m)
					}
				}
			}
			printMovies(cmd.OutOrStdout(), movies)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&favoritesOnly, "favorites", "f", false, "only favorites")
	return cmd
}

func searchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <title>",
		Short: "Search the movie database",
		Args:  cobra.ExactArgs(1),
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error {
			if err := st.Search(ctx, args[0]); err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), st.SearchResults)
			return nil
		}),
	}
}

func addCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <n>",
		Short: "Save the n-th result of the last search",
		Args:  cobra.ExactArgs(1),
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%q is not a result number", args[0])
			}
			m, err := st.AddFromSearch(ctx, n-1)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", m.Title, m.Year, m.ID)
			return nil
		}),
	}
}

func favCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fav <movie id>",
		Short: "Toggle a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error {
			on, err := st.ToggleFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintln(cmd.OutOrStdout(), "★ favorite")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "☆ not a favorite")
			}
			return nil
		}),
	}
}

func rmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <movie id>",
		Short: "Delete a movie",
		Args:  cobra.ExactArgs(1),
		RunE: withState(opts, func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Movie deleted")
			return nil
		}),
	}
}

type stateFunc func(ctx context.Context, cmd *cobra.Command, st *client.State, args []string) error

// withState loads the session file, runs fn and saves the file again, even
// when fn failed part-way.
func withState(opts *options, fn stateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		api := client.New(opts.server, client.WithTimeout(opts.timeout))
		st := client.NewState(api)
		if err := loadState(opts.stateFile, st); err != nil {
			return err
		}

		runErr := fn(cmd.Context(), cmd, st, args)
		if err := saveState(opts.stateFile, st); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}

func printMovies(w io.Writer, movies []model.Movie) {
	if len(movies) == 0 {
		fmt.Fprintln(w, "No movies yet. Try: moviectl search <title>")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t\tTITLE\tYEAR\tDIRECTOR")
	for _, m := range movies {
		star := ""
		if m.IsFavorite {
			star = "★"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, star, m.Title, m.Year, m.Director)
	}
	tw.Flush()
}

func printResults(w io.Writer, results []model.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tYEAR\tRUNTIME\tSAVED")
	for i, r := range results {
		saved := ""
		if r.IsAdded {
			saved = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Title, r.Year, r.Runtime, saved)
	}
	tw.Flush()
}
