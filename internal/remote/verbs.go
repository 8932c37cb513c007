package remote

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
)

// ShowMetadata reads name's .metadata file from the remote root and
// parses it with the same grammar the local metadata store uses.
func (d *Dispatcher) ShowMetadata(name string) (*metadata.Record, error) {
	if err := ValidateCheckpointID(name); err != nil {
		return nil, err
	}
	remotePath := path.Join(d.root, name, metadata.FileName)
	f, err := d.transport.SFTP().Open(remotePath)
	if err != nil {
		return nil, errors.Annotatef(err, "opening remote metadata %q", remotePath)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Annotatef(err, "reading remote metadata %q", remotePath)
	}
	return metadata.Parse(data), nil
}

// UpdateMetadata rewrites key=value in name's remote .metadata, via a
// read-modify-write-then-rename exactly like the local store (spec.md
// 4.E); concurrent updates without the root lock are last-rename-wins,
// as documented in spec.md section 5.
func (d *Dispatcher) UpdateMetadata(name, key, value string) error {
	if err := ValidateCheckpointID(name); err != nil {
		return err
	}
	record, err := d.ShowMetadata(name)
	if err != nil {
		return err
	}
	if err := record.Set(key, value); err != nil {
		return err
	}

	remotePath := path.Join(d.root, name, metadata.FileName)
	tmp := remotePath + ".tmp"
	if err := writeRemoteFile(d.transport, tmp, record.Format()); err != nil {
		return err
	}
	return d.transport.SFTP().Rename(tmp, remotePath)
}

// VerifySizes is a coarse remote verify: it compares per-file sizes
// between the local source and the remote snapshot (a cheap
// first-order check; a full digest comparison would require streaming
// both trees, which the restore/compare verbs already do locally after
// pulling the remote tree down).
func (d *Dispatcher) VerifySizes(name, localSource string) error {
	if err := ValidateCheckpointID(name); err != nil {
		return err
	}
	remoteRoot := path.Join(d.root, name)
	walker := d.transport.SFTP().Walk(remoteRoot)
	for walker.Step() {
		if walker.Err() != nil {
			return errors.Trace(walker.Err())
		}
		info := walker.Stat()
		if info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(remoteRoot, walker.Path())
		if err != nil || rel == metadata.FileName {
			continue
		}
		localPath := filepath.Join(localSource, rel)
		localInfo, err := os.Stat(localPath)
		if err != nil {
			return errs.NewVerifyMismatch("%q missing locally: %v", rel, err)
		}
		if localInfo.Size() != info.Size() {
			return errs.NewVerifyMismatch("%q size mismatch (local %d, remote %d)", rel, localInfo.Size(), info.Size())
		}
	}
	return nil
}

// Pull streams name's remote tree down into localTarget, the remote
// half of restore (spec.md 4.I over 4.J): merge-only by default, same
// as the local restore engine.
func (d *Dispatcher) Pull(name, localTarget string) error {
	if err := ValidateCheckpointID(name); err != nil {
		return err
	}
	remoteRoot := path.Join(d.root, name)
	if err := os.MkdirAll(localTarget, 0o755); err != nil {
		return errors.Annotatef(err, "creating restore target %q", localTarget)
	}

	walker := d.transport.SFTP().Walk(remoteRoot)
	for walker.Step() {
		if walker.Err() != nil {
			return errors.Trace(walker.Err())
		}
		rel, err := filepath.Rel(remoteRoot, walker.Path())
		if err != nil || rel == "." || rel == metadata.FileName {
			continue
		}
		info := walker.Stat()
		localPath := filepath.Join(localTarget, rel)
		if info.IsDir() {
			if err := os.MkdirAll(localPath, 0o755); err != nil {
				return err
			}
			continue
		}

		src, err := d.transport.SFTP().Open(walker.Path())
		if err != nil {
			return errors.Annotatef(err, "opening remote file %q", walker.Path())
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			src.Close()
			return err
		}
		dst, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			src.Close()
			return errors.Annotatef(err, "creating %q", localPath)
		}
		_, copyErr := io.Copy(dst, src)
		src.Close()
		dst.Close()
		if copyErr != nil {
			return errors.Annotatef(copyErr, "pulling %q", rel)
		}
	}
	return nil
}
