package imageio

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Remi-Gau/NiMARE/meta"
)

// WriteResult emits every statistic map of a result as a PNG slice stack
// under dir/maps/<name>/ and every table as dir/<name>.csv.
func WriteResult(res *meta.Result, dir string) error {
	for _, name := range res.MapNames() {
		vol, err := res.Map(name)
		if err != nil {
			return err
		}

		if err := WriteStack(vol, filepath.Join(dir, "maps", name), name); err != nil {
			return fmt.Errorf("writing map %s: %w", name, err)
		}
		log.Printf("wrote map %s", name)
	}

	for _, name := range res.TableNames() {
		tab, err := res.Table(name)
		if err != nil {
			return err
		}

		if err := writeTable(tab, filepath.Join(dir, name+".csv")); err != nil {
			return fmt.Errorf("writing table %s: %w", name, err)
		}
		log.Printf("wrote table %s (%d rows)", name, tab.Len())
	}

	return nil
}

func writeTable(tab meta.Table, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tab.WriteCSV(f)
}
