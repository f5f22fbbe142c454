package platform

import "fmt"

// OpenDocument hands path to the desktop's default handler and returns
// without waiting for it.
func OpenDocument(path string) error {
	cmd, err := openCommand(path)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}
