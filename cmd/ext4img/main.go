// Command ext4img builds a read-only ext4 image from a host directory tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"code.cloudfoundry.org/bytefmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anuejn/ext4-image-writer/backend/file"
	"github.com/anuejn/ext4-image-writer/ext4"
)

var (
	flagOutput  string
	flagMaxSize string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ext4img SOURCE_DIR",
	Short: "build a read-only ext4 image from a directory tree",
	Long: `ext4img packs the contents of SOURCE_DIR into a new ext4 image.
The image is laid out in a single pass and can later be grown up to
--max-size with resize2fs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
		maxSize, err := bytefmt.ToBytes(flagMaxSize)
		if err != nil {
			return fmt.Errorf("could not parse --max-size %q: %w", flagMaxSize, err)
		}
		return build(args[0], flagOutput, maxSize)
	},
}

func build(source, output string, maxSize uint64) error {
	dev, err := file.CreateFromPath(output)
	if err != nil {
		return err
	}
	defer dev.Close()

	w, err := ext4.Create(dev, maxSize, nil)
	if err != nil {
		return err
	}

	err = filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		switch {
		case info.IsDir():
			logrus.WithField("path", rel).Debug("mkdir")
			return w.Mkdir(rel)
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			logrus.WithField("path", rel).Debug("symlink")
			return w.Symlink(target, rel)
		case info.Mode().IsRegular():
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			logrus.WithField("path", rel).Debug("write file")
			return w.WriteFile(content, rel, uint16(info.Mode().Perm()))
		default:
			logrus.WithField("path", rel).Warn("skipping special file")
			return nil
		}
	})
	if err != nil {
		return err
	}

	if err := w.Finalize(); err != nil {
		return err
	}
	logrus.WithField("image", output).Info("image written")
	return nil
}

func main() {
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "image.img", "path of the image to create")
	rootCmd.Flags().StringVar(&flagMaxSize, "max-size", "1G", "maximum size the image may be resized to")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
