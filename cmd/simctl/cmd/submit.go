package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new simulation",
	Long: `Submit an outline for simulation. The contour file holds one "x y" pixel
pair per line in capture-frame coordinates; use "-" to read from stdin.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		contact, _ := cmd.Flags().GetString("contact")
		path, _ := cmd.Flags().GetString("contour-file")

		var r io.Reader = cmd.InOrStdin()
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open contour file: %w", err)
			}
			defer f.Close()
			r = f
		}

		contour, err := readContour(r)
		if err != nil {
			return err
		}

		res, err := newClient().Submit(api.SubmitSimulationRequest{
			Name:    name,
			Contact: contact,
			Contour: contour,
		})
		if err != nil {
			return err
		}

		cmd.Printf("%s Simulation %d submitted\n", defaultTheme.stateStyle("finished").Render("✓"), res.ID)
		cmd.Printf("%s %d\n", labelStyle.Render("Avatar:"), res.AvatarID)
		cmd.Printf("%s %s\n", labelStyle.Render("Handle:"), res.Handle)
		return nil
	},
}

// readContour parses "x y" lines. Blank lines and lines starting with # are
// skipped.
func readContour(r io.Reader) ([]api.Point, error) {
	var points []api.Point
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
		if len(fields) != 2 {
			return nil, fmt.Errorf("contour line %d: expected \"x y\", got %q", line, text)
		}
		x, errX := strconv.Atoi(fields[0])
		y, errY := strconv.Atoi(fields[1])
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("contour line %d: coordinates must be integers", line)
		}
		points = append(points, api.Point{X: x, Y: y})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contour: %w", err)
	}
	return points, nil
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("name", "", "Visitor name shown on the leaderboard (required)")
	submitCmd.Flags().String("contact", "", "Contact address for the result")
	submitCmd.Flags().String("contour-file", "-", "File of \"x y\" outline points, - for stdin")
	submitCmd.MarkFlagRequired("name")
}
