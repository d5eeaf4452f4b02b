// Package inventory walks the data root to answer "what daemons live
// on this host": the ls sub-command, the exporter's daemons scrape,
// and the fsid inference pre-step all read through it.
package inventory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/initsystem"
	"github.com/cephadm/cephadm/internal/layout"
	"github.com/cephadm/cephadm/internal/model"
)

// Daemon is one record in the host's daemon listing.
type Daemon struct {
	Style       string         `json:"style"`
	Name        string         `json:"name"`
	FSID        string         `json:"fsid"`
	SystemdUnit string         `json:"systemd_unit"`
	Enabled     bool           `json:"enabled,omitempty"`
	State       string         `json:"state,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	Image       string         `json:"container_image_name,omitempty"`
}

// Inventory lists deployed daemons.
type Inventory struct {
	log     zerolog.Logger
	dataDir string
	init    *initsystem.InitSystem
}

// New builds an Inventory over dataDir. init may be nil when unit
// state is not wanted (detail=false listings).
func New(dataDir string, init *initsystem.InitSystem, log zerolog.Logger) *Inventory {
	return &Inventory{log: log.With().Str("component", "inventory").Logger(), dataDir: dataDir, init: init}
}

// List returns one record per daemon directory under the data root.
// With detail, each record additionally carries the unit's enabled
// flag and state, the unit.meta contents, and the deployed image.
func (v *Inventory) List(ctx context.Context, detail bool) ([]Daemon, error) {
	entries, err := os.ReadDir(v.dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindExternalCommand, "inventory.List", v.dataDir, err)
	}

	var out []Daemon
	for _, cluster := range entries {
		if !cluster.IsDir() || !model.FSID(cluster.Name()).Valid() {
			continue
		}
		fsid := model.FSID(cluster.Name())
		daemons, err := os.ReadDir(filepath.Join(v.dataDir, cluster.Name()))
		if err != nil {
			continue
		}
		for _, d := range daemons {
			if !d.IsDir() || !strings.Contains(d.Name(), ".") {
				continue
			}
			kind, id, _ := strings.Cut(d.Name(), ".")
			ident := model.Identity{FSID: fsid, Kind: model.Kind(kind), ID: id}
			rec := Daemon{
				Style:       "cephadm:v1",
				Name:        d.Name(),
				FSID:        string(fsid),
				SystemdUnit: ident.UnitName(),
			}
			if detail {
				v.fillDetail(ctx, &rec, ident)
			}
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FSID != out[j].FSID {
			return out[i].FSID < out[j].FSID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (v *Inventory) fillDetail(ctx context.Context, rec *Daemon, ident model.Identity) {
	if v.init != nil {
		enabled, state, err := v.init.CheckUnit(ctx, rec.SystemdUnit)
		if err == nil {
			rec.Enabled = enabled
			rec.State = state
		}
	}
	dir := filepath.Join(v.dataDir, rec.FSID, rec.Name)
	if b, found, _ := layout.ReadIfExists(filepath.Join(dir, "unit.meta")); found {
		var meta map[string]any
		if err := json.Unmarshal(b, &meta); err == nil {
			rec.Meta = meta
		}
	}
	if b, found, _ := layout.ReadIfExists(filepath.Join(dir, "unit.image")); found {
		rec.Image = string(layout.TrimTrailingNewline(b))
	}
}

// InferFSID resolves the single cluster present under the data root.
// name, if non-empty, restricts the search to daemons with that
// "<kind>.<id>" name. Zero clusters found returns "", not an error —
// some sub-commands work without an fsid; more than one is fatal.
func (v *Inventory) InferFSID(ctx context.Context, name string) (model.FSID, error) {
	daemons, err := v.List(ctx, false)
	if err != nil {
		return "", err
	}
	seen := map[string]bool{}
	for _, d := range daemons {
		if name != "" && d.Name != name {
			continue
		}
		seen[d.FSID] = true
	}
	fsids := make([]string, 0, len(seen))
	for f := range seen {
		fsids = append(fsids, f)
	}
	sort.Strings(fsids)

	switch len(fsids) {
	case 0:
		return "", nil
	case 1:
		v.log.Info().Str("fsid", fsids[0]).Msg("inferring fsid")
		return model.FSID(fsids[0]), nil
	default:
		return "", agenterr.New(agenterr.KindUsage, "inventory.InferFSID",
			"cannot infer an fsid, one must be specified: "+strings.Join(fsids, ", "))
	}
}

// FindMonConfig returns the config file path of any mon daemon of
// fsid, used to infer --config for shell-style sub-commands.
func (v *Inventory) FindMonConfig(ctx context.Context, fsid model.FSID) (string, bool) {
	daemons, err := v.List(ctx, false)
	if err != nil {
		return "", false
	}
	for _, d := range daemons {
		if d.FSID == string(fsid) && strings.HasPrefix(d.Name, "mon.") {
			path := filepath.Join(v.dataDir, d.FSID, d.Name, "config")
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
	}
	return "", false
}
