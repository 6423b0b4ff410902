package sealing

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/integrity"
	"github.com/louisbranch/docseal/internal/services/signing/pdf"
	"golang.org/x/sync/errgroup"
)

const pdfMimeType = "application/pdf"

type decorateInput struct {
	doc      document.Document
	signers  []document.Recipient
	source   string
	rejected bool
	reason   string
}

// decorateAndSign produces the sealed artifact and returns its blob ref.
func (p *Pipeline) decorateAndSign(ctx context.Context, in decorateInput) (string, error) {
	doc := in.doc
	includeCertificate := doc.Team.IncludeSigningCertificate

	var base, standard []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := p.blobs.Get(gctx, in.source)
		if err != nil {
			return fmt.Errorf("fetch document bytes %s: %w", in.source, err)
		}
		base = data
		return nil
	})
	if includeCertificate && p.standard != nil {
		g.Go(func() error {
			p.attempt(doc.ID, "standard certificate", func() error {
				data, err := p.standard.StandardCertificate(gctx, doc)
				if err != nil {
					return err
				}
				standard = data
				return nil
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	out, err := p.engine.Normalize(ctx, base)
	if err != nil {
		return "", fmt.Errorf("normalize pdf: %w", err)
	}
	if out, err = p.engine.FlattenForm(ctx, out); err != nil {
		return "", fmt.Errorf("flatten form: %w", err)
	}
	if out, err = p.engine.FlattenAnnotations(ctx, out); err != nil {
		return "", fmt.Errorf("flatten annotations: %w", err)
	}

	if in.rejected && in.reason != "" {
		if out, err = p.engine.StampRejection(ctx, out, in.reason); err != nil {
			return "", fmt.Errorf("stamp rejection: %w", err)
		}
	}

	if includeCertificate {
		if len(standard) > 0 {
			p.attempt(doc.ID, "append standard certificate", func() error {
				merged, err := p.engine.AppendPages(ctx, out, standard)
				if err != nil {
					return err
				}
				out = merged
				return nil
			})
		}
		p.attempt(doc.ID, "certification page", func() error {
			page, err := p.certificationPage(doc, in.signers)
			if err != nil {
				return err
			}
			merged, err := p.engine.AppendPages(ctx, out, page)
			if err != nil {
				return err
			}
			out = merged
			return nil
		})
	}

	for _, field := range doc.Fields {
		if !field.Inserted {
			continue
		}
		mark, ok, err := fieldMark(field)
		if err != nil {
			return "", fmt.Errorf("field %d: %w", field.ID, err)
		}
		if !ok {
			continue
		}
		if out, err = p.engine.InsertField(ctx, out, mark, doc.UseLegacyFieldInsertion); err != nil {
			return "", fmt.Errorf("insert field %d: %w", field.ID, err)
		}
	}

	if out, err = p.engine.FlattenForm(ctx, out); err != nil {
		return "", fmt.Errorf("flatten form after insertion: %w", err)
	}

	signed, err := p.signer.Sign(ctx, out)
	if err != nil {
		return "", fmt.Errorf("sign pdf: %w", err)
	}
	ref, err := p.blobs.Put(ctx, document.SealedFileName(doc.Title, in.rejected), pdfMimeType, signed)
	if err != nil {
		return "", fmt.Errorf("store sealed pdf: %w", err)
	}
	return ref, nil
}

// certificationPage renders the custom certification page for the
// non-CC signers of doc.
func (p *Pipeline) certificationPage(doc document.Document, signers []document.Recipient) ([]byte, error) {
	var refs []integrity.SignatureRef
	blocks := make([]certification.Signer, 0, len(signers))
	for _, recipient := range signers {
		block := certification.Signer{
			Name:       recipient.Name,
			Email:      recipient.Email,
			NationalID: recipient.NationalID,
			Phone:      recipient.Phone,
			SignedAt:   recipient.SignedAt,
			Role:       string(recipient.Role),
		}
		for _, field := range doc.Fields {
			if field.RecipientID != recipient.ID || field.Signature == nil {
				continue
			}
			hash := field.Signature.Hash
			refs = append(refs, integrity.SignatureRef{ID: field.Signature.ID, Hash: &hash})
			if block.SignatureHash == "" {
				block.SignatureHash = hash
			}
		}
		blocks = append(blocks, block)
	}

	documentHash, err := integrity.HashDocument(integrity.DocumentInput{
		ID:             doc.ID,
		Title:          doc.Title,
		DocumentDataID: doc.DocumentDataID,
		CompletedAt:    doc.CompletedAt,
		Signatures:     refs,
	})
	if err != nil {
		return nil, err
	}
	return p.certs.Render(certification.Input{
		DocumentID:   doc.ID,
		Title:        doc.Title,
		CompanyName:  doc.Team.Name,
		DocumentHash: documentHash,
		Signers:      blocks,
	})
}

// fieldMark maps an inserted field to the mark drawn on its page. Fields
// without a value produce no mark.
func fieldMark(field document.Field) (pdf.FieldMark, bool, error) {
	mark := pdf.FieldMark{
		Page:   field.Page,
		X:      field.PositionX,
		Y:      field.PositionY,
		Width:  field.Width,
		Height: field.Height,
	}
	if field.Type.IsSignature() {
		if field.Signature == nil {
			return mark, false, nil
		}
		if image := field.Signature.ImageBase64; image != nil && strings.TrimSpace(*image) != "" {
			decoded, err := decodeImage(*image)
			if err != nil {
				return mark, false, err
			}
			mark.ImagePNG = decoded
			return mark, true, nil
		}
		if typed := field.Signature.TypedSignature; typed != nil && strings.TrimSpace(*typed) != "" {
			mark.Text = strings.TrimSpace(*typed)
			return mark, true, nil
		}
		return mark, false, nil
	}
	text := strings.TrimSpace(field.CustomText)
	if text == "" {
		return mark, false, nil
	}
	mark.Text = text
	return mark, true, nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		comma := strings.IndexByte(value, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed signature data url")
		}
		value = value[comma+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode signature image: %w", err)
	}
	return decoded, nil
}
