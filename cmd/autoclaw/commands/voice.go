package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autoclaw/pkg/autoclaw/agent"
)

// newVoiceCmd creates the `autoclaw voice` command group.
func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Voice commands and speech synthesis",
	}

	var outFile string
	sayCmd := &cobra.Command{
		Use:   "say <text>...",
		Short: "Synthesize speech and write the audio to a file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := agent.New(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			audio, mime, err := a.Speak(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if outFile == "" {
				outFile = "speech" + extForMime(mime)
			}
			if err := os.WriteFile(outFile, audio, 0o644); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			fmt.Printf("Wrote %d bytes (%s) to %s\n", len(audio), mime, outFile)
			return nil
		},
	}
	sayCmd.Flags().StringVarP(&outFile, "out", "o", "", "output audio file")

	listenCmd := &cobra.Command{
		Use:   "listen <audio-file>",
		Short: "Transcribe recorded audio and run the matching command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := agent.New(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			audio, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			transcript, err := a.Transcribe(ctx, audio, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			fmt.Println("Heard:", transcript)

			reply, err := a.HandleVoice(ctx, transcript)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		},
	}

	commandsCmd := &cobra.Command{
		Use:   "commands",
		Short: "List registered voice commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := agent.New(configPath(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			for _, vc := range a.Voice.Commands() {
				desc := vc.Description
				if desc == "" && vc.Response != "" {
					desc = "replies: " + vc.Response
				}
				fmt.Printf("%-24s %s\n", vc.Phrase, desc)
			}
			return nil
		},
	}

	cmd.AddCommand(sayCmd, listenCmd, commandsCmd)
	return cmd
}

func extForMime(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	}
	return ".bin"
}
