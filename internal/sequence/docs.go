package sequence

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// docDir returns the documentation directory inside the staging tree.
func docDir(env StepEnvironment) string {
	return filepath.Join(env.DestDir, "usr", "share", "doc", env.Package)
}

// installDocs copies the declared documentation inputs into the package's
// doc directory. Inputs are resolved relative to the source directory; a
// missing input fails the step.
func installDocs(env StepEnvironment) error {
	if env.DestDir == "" {
		return errors.New("destination directory is required to install docs")
	}
	if env.Package == "" {
		return errors.New("package name is required to install docs")
	}

	target := docDir(env)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create doc directory: %w", err)
	}

	for _, input := range env.Docs.Inputs {
		source := filepath.Join(env.SourceDir, input)
		info, err := os.Stat(source)
		if err != nil {
			return fmt.Errorf("stat doc input %q: %w", input, err)
		}

		if info.IsDir() {
			destination := filepath.Join(target, filepath.Base(filepath.Clean(source)))
			if err := copyDirectoryContents(source, destination); err != nil {
				return fmt.Errorf("install doc directory %q: %w", input, err)
			}
			continue
		}

		destination := filepath.Join(target, filepath.Base(source))
		if err := copyFile(source, destination, info.Mode()); err != nil {
			return fmt.Errorf("install doc file %q: %w", input, err)
		}
	}

	return nil
}

func copyDirectoryContents(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(dstDir, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			return os.MkdirAll(targetPath, info.Mode().Perm())
		}
		return copyFile(path, targetPath, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

// removeBuildResidue clears the directories a distutils build leaves behind.
func removeBuildResidue(sourceDir string) error {
	residue := []string{"build", ".pybuild", "html"}

	var errs []error
	for _, name := range residue {
		path := filepath.Join(sourceDir, name)
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
