// Copyright (C) The SimAI SDK Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package simai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/simai-sdk/simai-go/sdk/go/ctxlog"
)

// DefaultPartSize is the size of the chunks a file is split into for
// multipart upload.
const DefaultPartSize = 100_000_000

// DefaultUploadPattern matches the non-hidden files at the top of a
// folder.
const DefaultUploadPattern = "[!.]*"

// A NamedFile is a file to upload. Content is read from Reader, or,
// if Reader is nil, from the file at Path. Name defaults to the base
// name of Path and must have an extension.
type NamedFile struct {
	Path   string
	Name   string
	Reader io.Reader
}

// open returns the content, and the name split into base name and
// extension.
func (f NamedFile) open() (io.ReadCloser, string, string, error) {
	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	i := strings.LastIndexByte(name, '.')
	if name == "" || name == "." || i < 0 || i == len(name)-1 {
		return nil, "", "", fmt.Errorf("%w: could not determine file extension of %q", ErrInvalidArgument, name)
	}
	base, ext := name[:i], name[i+1:]
	if f.Reader != nil {
		return io.NopCloser(f.Reader), base, ext, nil
	}
	if f.Path == "" {
		return nil, "", "", fmt.Errorf("%w: NamedFile has neither Path nor Reader", ErrInvalidArgument)
	}
	rdr, err := os.Open(f.Path)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	return rdr, base, ext, nil
}

// UploadedPart identifies one uploaded chunk when completing a
// multipart upload.
type UploadedPart struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// UploadParts reads r in chunks of partSize bytes (DefaultPartSize
// if partSize <= 0) and uploads each one to a presigned URL obtained
// from uri. progress, if not nil, is called with the size of each
// chunk after it is uploaded.
//
// The returned list is empty if r is empty.
func (c *Client) UploadParts(ctx context.Context, uri string, r io.Reader, uploadID string, partSize int, progress func(int)) ([]UploadedPart, error) {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	logger := ctxlog.FromContext(ctx).WithField("UploadID", uploadID)
	parts := []UploadedPart{}
	for partNumber := 1; ; partNumber++ {
		var chunk bytes.Buffer
		nread, err := chunk.ReadFrom(io.LimitReader(r, int64(partSize)))
		if err != nil {
			return nil, fmt.Errorf("reading part %d: %w", partNumber, err)
		}
		if nread == 0 {
			break
		}
		n := int(nread)
		logger.WithField("PartNumber", partNumber).Debugf("uploading part, size %s", humanize.Bytes(uint64(n)))

		var presigned struct {
			URL string `json:"url"`
		}
		err = c.RequestAndDecode(ctx, &presigned, http.MethodPut, uri, map[string]interface{}{
			"part_number": partNumber,
			"upload_id":   uploadID,
		}, nil)
		if err != nil {
			return nil, err
		}
		if presigned.URL == "" {
			return nil, fmt.Errorf("%w: no upload url for part %d", ErrMalformedResponse, partNumber)
		}
		resp, err := c.Request(ctx, http.MethodPut, presigned.URL, bytes.NewReader(chunk.Bytes()))
		if err != nil {
			return nil, err
		}
		etag := resp.Header.Get("ETag")
		if etag == "" {
			return nil, fmt.Errorf("%w: no ETag in response to part %d upload", ErrMalformedResponse, partNumber)
		}
		parts = append(parts, UploadedPart{PartNumber: partNumber, ETag: etag})
		c.Metrics.observeUpload(n)
		if progress != nil {
			progress(n)
		}
		if n < partSize {
			break
		}
	}
	return parts, nil
}

// upload creates a part of the given training data and uploads
// file's content to it.
func (d *TrainingDataPartDirectory) upload(ctx context.Context, trainingDataID string, file NamedFile, progress func(int)) (*TrainingDataPart, error) {
	if err := requireID("training data", trainingDataID); err != nil {
		return nil, err
	}
	rdr, name, ext, err := file.open()
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	client := d.session.Client
	var created struct {
		Part     RawRecord `json:"training_data_part"`
		UploadID string    `json:"upload_id"`
	}
	err = client.RequestAndDecode(ctx, &created, http.MethodPost, pathf("training_data/%s/parts/", trainingDataID), map[string]string{
		"name":           name,
		"file_extension": ext,
	}, nil)
	if err != nil {
		return nil, err
	}
	part, err := d.ModelFrom(created.Part)
	if err != nil {
		return nil, err
	}
	err = d.session.sendParts(ctx, rdr, created.UploadID,
		pathf("training-data-parts/%s/part", part.id),
		pathf("training_data_parts/%s/complete", part.id),
		progress)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).WithField("TrainingDataPart", part.id).Infof("uploaded %s.%s", name, ext)
	return part, nil
}

// sendParts uploads rdr in parts, getting a presigned URL for each
// from partURI, then completes the upload at completeURI.
func (s *Session) sendParts(ctx context.Context, rdr io.Reader, uploadID, partURI, completeURI string, progress func(int)) error {
	var sent int64
	parts, err := s.Client.UploadParts(ctx, partURI, rdr, uploadID, s.UploadPartSize, func(n int) {
		sent += int64(n)
		if progress != nil {
			progress(n)
		}
	})
	if err != nil {
		return err
	}
	err = s.do(ctx, http.MethodPost, completeURI, map[string]interface{}{
		"upload_id": uploadID,
		"parts":     parts,
	}, nil)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).WithField("UploadID", uploadID).Debugf("sent %s in %d parts", humanize.Bytes(uint64(sent)), len(parts))
	return nil
}

// uploadFolder uploads the regular files in dir matching pattern as
// parts of the given training data, then starts data extraction.
func (d *TrainingDataPartDirectory) uploadFolder(ctx context.Context, trainingDataID, dir, pattern string) ([]*TrainingDataPart, error) {
	if pattern == "" {
		pattern = DefaultUploadPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: invalid pattern %q", ErrInvalidArgument, pattern)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a folder", ErrInvalidArgument, dir)
	}
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	sort.Strings(matches)
	var uploaded []*TrainingDataPart
	for _, match := range matches {
		fi, err := fs.Stat(fsys, match)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return uploaded, err
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		part, err := d.upload(ctx, trainingDataID, NamedFile{
			Path: filepath.Join(dir, filepath.FromSlash(match)),
			Name: path.Base(match),
		}, nil)
		if err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, part)
	}
	err = d.session.do(ctx, http.MethodPost, pathf("training-data/%s/compute", trainingDataID), nil, nil)
	if err != nil {
		return uploaded, err
	}
	return uploaded, nil
}
