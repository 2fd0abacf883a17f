package resources

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/activecm/rita-pdns/config"
)

//InitTestResources creates a resource bundle backed by a sqlite database
//in a temporary directory which is removed when the test finishes
func InitTestResources(t *testing.T) *Resources {
	t.Helper()

	conf, err := config.LoadTestingConfig(config.StoreSQLite, filepath.Join(t.TempDir(), "pdns.sqlite"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewResources(conf)
	if err != nil {
		t.Fatal(err)
	}
	res.Log.Out = io.Discard
	t.Cleanup(func() { res.Close() })
	return res
}
