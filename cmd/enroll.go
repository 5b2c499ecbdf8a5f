package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [IMAGE...]",
	Short: "Enroll a person from face images",
	Long: `Enroll a person from a set of face images. Enrolling an existing ID
replaces its name, email and embeddings.

With --dir every subdirectory is enrolled as one person. The subdirectory
name is the ID unless identity.yaml overrides it:

  id: jdoe
  name: John Doe
  email: john@example.com

Examples:
  # Enroll one person
  face-registry enroll --id jdoe --name "John Doe" --email john@example.com a.jpg b.jpg c.jpg d.jpg

  # Enroll everyone under people/
  face-registry enroll --dir people/`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("id", "", "Identity ID")
	enrollCmd.Flags().String("name", "", "Display name")
	enrollCmd.Flags().String("email", "", "Contact email")
	enrollCmd.Flags().String("dir", "", "Directory with one subdirectory of images per person")
}

// identityFile is the optional per-person metadata in enrollment directories
type identityFile struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// enrollmentJob is one person found in an enrollment directory.
// Images are read only when the job runs.
type enrollmentJob struct {
	dir    string
	meta   identityFile
	images []string
}

func (j enrollmentJob) request() (recognition.EnrollRequest, error) {
	images, err := readImages(j.images)
	if err != nil {
		return recognition.EnrollRequest{}, err
	}
	return recognition.EnrollRequest{
		ID:          j.meta.ID,
		DisplayName: j.meta.Name,
		Contact:     j.meta.Email,
		Images:      images,
	}, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	if dir == "" && len(args) == 0 {
		return errors.New("provide image files or --dir")
	}
	if dir != "" && len(args) > 0 {
		return errors.New("image arguments cannot be combined with --dir")
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if dir != "" {
		return enrollDirectory(ctx, a.engine, dir)
	}

	images, err := readImages(args)
	if err != nil {
		return err
	}
	result, err := a.engine.Enroll(ctx, recognition.EnrollRequest{
		ID:          mustGetString(cmd, "id"),
		DisplayName: mustGetString(cmd, "name"),
		Contact:     mustGetString(cmd, "email"),
		Images:      images,
	})
	if err != nil {
		return err
	}
	printEnrollResult(result)
	return nil
}

func printEnrollResult(result *recognition.EnrollResult) {
	fmt.Printf("Enrolled %s (%s) with %d face embeddings", result.IdentityID, result.DisplayName, result.AcceptedVectors)
	if result.SkippedImages > 0 {
		fmt.Printf(", %d images skipped", result.SkippedImages)
	}
	fmt.Println()
	if result.RebuildErr != nil {
		fmt.Printf("Warning: index refresh failed: %v\n", result.RebuildErr)
	}
}

// readImages reads every file into memory, in argument order
func readImages(paths []string) ([][]byte, error) {
	images := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		images = append(images, data)
	}
	return images, nil
}

// imageFiles lists supported images in dir sorted by name
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if constants.SupportedImageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// loadEnrollmentJobs builds one enrollment per subdirectory of root
func loadEnrollmentJobs(root string) ([]enrollmentJob, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", root, err)
	}

	var jobs []enrollmentJob
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		meta := identityFile{ID: entry.Name(), Name: entry.Name()}
		raw, err := os.ReadFile(filepath.Join(dir, constants.IdentityFileName))
		switch {
		case err == nil:
			var parsed identityFile
			if err := yaml.Unmarshal(raw, &parsed); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", filepath.Join(dir, constants.IdentityFileName), err)
			}
			if parsed.ID != "" {
				meta.ID = parsed.ID
			}
			if parsed.Name != "" {
				meta.Name = parsed.Name
			}
			meta.Email = parsed.Email
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading %s: %w", constants.IdentityFileName, err)
		}

		paths, err := imageFiles(dir)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, enrollmentJob{dir: dir, meta: meta, images: paths})
	}
	return jobs, nil
}

func enrollDirectory(ctx context.Context, engine *recognition.Engine, root string) error {
	jobs, err := loadEnrollmentJobs(root)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no person directories found in %s", root)
	}

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("people"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var failures []string
	enrolled := 0
	for _, job := range jobs {
		req, err := job.request()
		if err != nil {
			bar.Add(1)
			failures = append(failures, fmt.Sprintf("%s: %v", job.dir, err))
			continue
		}
		result, err := engine.Enroll(ctx, req)
		bar.Add(1)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", job.dir, err))
			continue
		}
		enrolled++
		if result.RebuildErr != nil {
			failures = append(failures, fmt.Sprintf("%s: enrolled, index refresh failed: %v", job.dir, result.RebuildErr))
		}
	}
	bar.Finish()
	fmt.Println()

	fmt.Printf("Enrolled %d of %d people\n", enrolled, len(jobs))
	for _, failure := range failures {
		fmt.Printf("  %s\n", failure)
	}
	if enrolled < len(jobs) {
		return fmt.Errorf("%d enrollments failed", len(jobs)-enrolled)
	}
	return nil
}
