package submission

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/endharassment/cybertip-reporter/internal/cybertip"
	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/report"
	"github.com/endharassment/cybertip-reporter/internal/retry"
	"golang.org/x/sync/errgroup"
)

// fanOut runs fn over items with at most limit in flight. Results keep the
// order of items. The first error cancels the rest and is returned. A panic
// in fn is returned as ErrPanic.
func fanOut[T, R any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if v := recover(); v != nil {
					err = fmt.Errorf("%w: %v", ErrPanic, v)
				}
			}()
			res, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) uploadMedia(ctx context.Context, r *run) error {
	var media []model.Media
	for _, m := range r.req.Media {
		// Requested media the org no longer has were dropped from the
		// enrichment; media owned by the subject were never requested.
		if r.requested[m.Identifier()] && r.enrichment.MediaFor(m.Identifier()) == nil {
			p.logger.Info("skipping missing media", "report_id", r.reportID, "media_id", m.ID)
			continue
		}
		media = append(media, m)
	}

	arts, err := fanOut(ctx, p.cfg.MaxConcurrency, media, func(ctx context.Context, m model.Media) (model.MediaArtifact, error) {
		enr := r.enrichment.MediaFor(m.Identifier())
		var name string
		if enr != nil {
			name = enr.FileName
		}
		fileID, err := p.uploadStream(ctx, r, m.URL, fileName(name, m.URL))
		if err != nil {
			return model.MediaArtifact{}, fmt.Errorf("uploading media %s: %w", m.ID, err)
		}
		doc, err := p.sendDetails(ctx, r, report.MediaFileDetails(r.reportID, fileID, m, enr))
		if err != nil {
			return model.MediaArtifact{}, fmt.Errorf("describing media %s: %w", m.ID, err)
		}
		return model.MediaArtifact{ID: m.ID, TypeID: m.TypeID, FileID: fileID, XML: doc}, nil
	})
	if err != nil {
		return err
	}
	r.media = arts
	return nil
}

func (p *Pipeline) uploadAdditionalFiles(ctx context.Context, r *run) error {
	arts, err := fanOut(ctx, p.cfg.MaxConcurrency, r.enrichment.AdditionalFiles, func(ctx context.Context, f model.AdditionalFile) (model.AdditionalFileArtifact, error) {
		fileID, err := p.uploadStream(ctx, r, f.FileURL, fileName(f.FileName, f.FileURL))
		if err != nil {
			return model.AdditionalFileArtifact{}, fmt.Errorf("uploading additional file %s: %w", f.FileURL, err)
		}
		doc, err := p.sendDetails(ctx, r, report.AdditionalFileDetails(r.reportID, fileID, f))
		if err != nil {
			return model.AdditionalFileArtifact{}, fmt.Errorf("describing additional file %s: %w", f.FileURL, err)
		}
		return model.AdditionalFileArtifact{URL: f.FileURL, FileID: fileID, XML: doc}, nil
	})
	if err != nil {
		return err
	}
	r.additionalFiles = arts
	return nil
}

func (p *Pipeline) uploadThreads(ctx context.Context, r *run) error {
	threads := withMessageIPs(r.req.Threads, r.enrichment)
	arts, err := fanOut(ctx, p.cfg.MaxConcurrency, threads, func(ctx context.Context, t model.Thread) (model.ThreadArtifact, error) {
		csv := report.ThreadCSV(t)
		name := report.ThreadFileName(t)
		body := cybertip.FormBody{
			Fields: []cybertip.Field{{Name: "id", Value: r.reportID}},
			File: &cybertip.FormFile{
				FieldName:   "file",
				FileName:    name,
				ContentType: "text/csv",
				Data:        []byte(csv),
			},
		}
		resp, err := p.transport.Send(ctx, r.creds, body, cybertip.RouteUpload, r.isTest)
		if err != nil {
			return model.ThreadArtifact{}, fmt.Errorf("uploading thread %s: %w", t.ThreadID, err)
		}
		fileID, err := uploadedFileID(resp)
		if err != nil {
			return model.ThreadArtifact{}, fmt.Errorf("uploading thread %s: %w", t.ThreadID, err)
		}
		if _, err := p.sendDetails(ctx, r, report.ThreadFileDetails(r.reportID, fileID, t, p.cfg.PrivateThreadTypeID)); err != nil {
			return model.ThreadArtifact{}, fmt.Errorf("describing thread %s: %w", t.ThreadID, err)
		}
		return model.ThreadArtifact{FileName: name, FileID: fileID, CSV: csv}, nil
	})
	if err != nil {
		return err
	}
	r.threads = arts
	return nil
}

// uploadStream downloads src and streams it to /upload. A failed pair is
// retried from a fresh download, since a partly sent stream cannot be
// replayed.
func (p *Pipeline) uploadStream(ctx context.Context, r *run, src, name string) (string, error) {
	var resp *cybertip.Response
	err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		rc, err := p.download(ctx, src)
		if err != nil {
			return err
		}
		defer rc.Close()

		body := &cybertip.StreamBody{
			Fields:    []cybertip.Field{{Name: "id", Value: r.reportID}},
			FieldName: "file",
			FileName:  name,
			Reader:    rc,
		}
		resp, err = p.transport.Send(ctx, r.creds, body, cybertip.RouteUpload, r.isTest)
		return err
	})
	if err != nil {
		return "", err
	}
	return uploadedFileID(resp)
}

func (p *Pipeline) download(ctx context.Context, src string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrDownloadFailed, err))
	}
	resp, err := p.cfg.MediaClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		err := fmt.Errorf("%w: %s returned status %d", ErrDownloadFailed, src, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return resp.Body, nil
}

// sendDetails posts fd to /fileinfo and returns the XML that was sent.
func (p *Pipeline) sendDetails(ctx context.Context, r *run, fd *report.FileDetails) (string, error) {
	doc, err := report.Marshal(fd)
	if err != nil {
		return "", err
	}
	resp, err := p.transport.Send(ctx, r.creds, cybertip.XMLBody(doc), cybertip.RouteFileInfo, r.isTest)
	if err != nil {
		return "", err
	}
	if _, err := accepted(resp, cybertip.RouteFileInfo); err != nil {
		return "", err
	}
	return string(doc), nil
}

func uploadedFileID(resp *cybertip.Response) (string, error) {
	rr, err := accepted(resp, cybertip.RouteUpload)
	if err != nil {
		return "", err
	}
	if rr.FileID == "" {
		return "", fmt.Errorf("%w: %s returned no file id", cybertip.ErrMalformedResponse, cybertip.RouteUpload)
	}
	return rr.FileID, nil
}

// fileName prefers the name the org supplied, then the last path element
// of the source URL.
func fileName(name, src string) string {
	if name != "" {
		return name
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base := path.Base(u.Path); base != "." && base != "/" {
		return base
	}
	return ""
}

// withMessageIPs fills in message addresses the caller did not have from
// the org's enrichment. threads is not modified.
func withMessageIPs(threads []model.Thread, enr *model.Enrichment) []model.Thread {
	if len(enr.Messages) == 0 {
		return threads
	}
	ips := make(map[model.Identifier]string, len(enr.Messages))
	for _, m := range enr.Messages {
		ips[model.Identifier{ID: m.ID, TypeID: m.TypeID}] = m.IPAddress
	}
	out := make([]model.Thread, len(threads))
	for i, t := range threads {
		msgs := make([]model.ThreadMessage, len(t.Messages))
		copy(msgs, t.Messages)
		for j := range msgs {
			if msgs[j].IPAddress.IP != "" {
				continue
			}
			if ip, ok := ips[model.Identifier{ID: msgs[j].ContentID, TypeID: msgs[j].ContentTypeID}]; ok {
				msgs[j].IPAddress.IP = ip
			}
		}
		t.Messages = msgs
		out[i] = t
	}
	return out
}
