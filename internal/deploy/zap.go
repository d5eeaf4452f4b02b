package deploy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cephadm/cephadm/internal/agenterr"
	"github.com/cephadm/cephadm/internal/model"
	"github.com/cephadm/cephadm/internal/runner"
)

// inventoryDevice is the slice of ceph-volume inventory output ZapOSDs
// reads: the device path and which cluster each of its LVs belongs to.
type inventoryDevice struct {
	Path string `json:"path"`
	LVs  []struct {
		Name        string `json:"name"`
		ClusterFSID string `json:"cluster_fsid"`
	} `json:"lvs"`
}

// ZapOSDs wipes every storage device whose LVs all belong to fsid,
// using ceph-volume inside a one-off privileged container. Devices
// with LVs from more than one cluster are never zapped: mapping an LV
// name back to its device path is not implemented (the volume-group id
// is not part of the inventory output), so those are logged and
// skipped.
func (e *Engine) ZapOSDs(ctx context.Context, fsid model.FSID, image string) error {
	mounts := []model.Mount{
		{Source: "/dev", Destination: "/dev"},
		{Source: "/run/udev", Destination: "/run/udev"},
		{Source: "/sys", Destination: "/sys"},
		{Source: "/run/lvm", Destination: "/run/lvm"},
		{Source: "/run/lock/lvm", Destination: "/run/lock/lvm"},
	}
	argv := e.rt.BuildRunArgv(model.ContainerSpec{
		Identity:   model.Identity{FSID: fsid, Kind: model.KindOSD, ID: "inventory"},
		Image:      image,
		Entrypoint: "/usr/sbin/ceph-volume",
		Args:       []string{"inventory", "--format", "json"},
		Privileged: true,
		Mounts:     mounts,
	}, e.cfg.Paths.LockDir, nil)
	res, err := e.run.Run(ctx, runner.VerboseOnFailure, 5*time.Minute, "ceph-volume inventory", nil, argv...)
	if err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.ZapOSDs", "failed to list osd inventory", err)
	}
	var devices []inventoryDevice
	if err := json.Unmarshal([]byte(res.Stdout), &devices); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.ZapOSDs", "invalid JSON in ceph-volume inventory", err)
	}

	for _, dev := range devices {
		if len(dev.LVs) == 0 {
			continue
		}
		matching := 0
		var lvNames []string
		for _, lv := range dev.LVs {
			if lv.ClusterFSID == string(fsid) {
				matching++
			}
			lvNames = append(lvNames, lv.Name)
		}
		switch {
		case matching == len(dev.LVs):
			if err := e.zapDevice(ctx, fsid, image, mounts, dev.Path); err != nil {
				return err
			}
		case matching > 0:
			// TODO: map the lv names back to device paths (the vg id
			// isn't part of the inventory output)
			e.log.Warn().Strs("lvs", lvNames).Msg("Not zapping LVs (not implemented)")
		}
	}
	return nil
}

func (e *Engine) zapDevice(ctx context.Context, fsid model.FSID, image string, mounts []model.Mount, path string) error {
	e.log.Info().Str("device", path).Msg("zapping device")
	argv := e.rt.BuildRunArgv(model.ContainerSpec{
		Identity:   model.Identity{FSID: fsid, Kind: model.KindOSD, ID: "zap"},
		Image:      image,
		Entrypoint: "/usr/sbin/ceph-volume",
		Args:       []string{"lvm", "zap", "--destroy", path},
		Privileged: true,
		Mounts:     mounts,
	}, e.cfg.Paths.LockDir, nil)
	if _, err := e.run.Run(ctx, runner.VerboseOnFailure, 5*time.Minute, "ceph-volume lvm zap", nil, argv...); err != nil {
		return agenterr.Wrap(agenterr.KindExternalCommand, "deploy.ZapOSDs", path, err)
	}
	return nil
}
