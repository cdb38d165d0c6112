// wallpaperd is a Wayland layer-shell wallpaper daemon: it renders static
// images, animated images, video loops, GPU shaders, and slideshow
// directories onto every connected output's background layer, and
// reconfigures itself live as its config file changes.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("wallpaperd exited with error")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wallpaperd",
		Short: "wallpaperd",
		Long:  "A layer-shell wallpaper daemon for wlroots-based Wayland compositors.",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCommand())

	return root
}
