package esp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/bulkmail/internal/domain"
)

// NewMessageID returns an RFC 5322 Message-ID under the sender's domain.
func NewMessageID(from string) string {
	domainPart := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domainPart = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domainPart + ">"
}

// BuildMIME renders msg as an RFC 5322 message. The body is
// multipart/alternative when both text and HTML exist, wrapped in
// multipart/mixed when attachments are present.
func BuildMIME(msg *domain.EmailMessage, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	from := (&mail.Address{Name: msg.FromName, Address: msg.FromEmail}).String()
	to := (&mail.Address{Name: msg.ToName, Address: msg.To}).String()

	writeHeader(&buf, "From", from)
	writeHeader(&buf, "To", to)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", date.UTC().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, k, msg.Headers[k])
	}

	if len(msg.Attachments) == 0 {
		if err := writeBody(&buf, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", `multipart/mixed; boundary="`+mixed.Boundary()+`"`)
	buf.WriteString("\r\n")

	var body bytes.Buffer
	if err := writeBody(&body, msg); err != nil {
		return nil, err
	}
	hdr, content := splitHeaders(body.Bytes())
	part, err := mixed.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write body part: %w", err)
	}

	for _, a := range msg.Attachments {
		if err := writeAttachment(mixed, a); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("close mixed: %w", err)
	}
	return buf.Bytes(), nil
}

// writeBody writes the Content-Type header block followed by the body.
func writeBody(w *bytes.Buffer, msg *domain.EmailMessage) error {
	if msg.TextContent == "" {
		writeHeader(w, "Content-Type", "text/html; charset=utf-8")
		writeHeader(w, "Content-Transfer-Encoding", "quoted-printable")
		w.WriteString("\r\n")
		return writeQP(w, msg.HTMLContent)
	}

	alt := multipart.NewWriter(w)
	writeHeader(w, "Content-Type", `multipart/alternative; boundary="`+alt.Boundary()+`"`)
	w.WriteString("\r\n")
	for _, p := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", msg.TextContent},
		{"text/html; charset=utf-8", msg.HTMLContent},
	} {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.ctype)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := alt.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create alternative part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := io.WriteString(qp, p.body); err != nil {
			return fmt.Errorf("encode part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return fmt.Errorf("encode part: %w", err)
		}
	}
	return alt.Close()
}

func writeAttachment(mw *multipart.Writer, a domain.MessageAttachment) error {
	ctype := a.ContentType
	if ctype == "" {
		ctype = mime.TypeByExtension(extOf(a.Filename))
	}
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", mime.FormatMediaType(ctype, map[string]string{"name": a.Filename}))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	h.Set("Content-Transfer-Encoding", "base64")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create attachment part: %w", err)
	}
	enc := base64.StdEncoding.EncodeToString(a.Data)
	for len(enc) > 76 {
		io.WriteString(pw, enc[:76]+"\r\n")
		enc = enc[76:]
	}
	_, err = io.WriteString(pw, enc+"\r\n")
	return err
}

func writeQP(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, s); err != nil {
		return err
	}
	return qp.Close()
}

func writeHeader(w *bytes.Buffer, k, v string) {
	v = strings.NewReplacer("\r", "", "\n", "").Replace(v)
	w.WriteString(k + ": " + v + "\r\n")
}

// splitHeaders separates a rendered body into its header block and content.
func splitHeaders(b []byte) (textproto.MIMEHeader, []byte) {
	h := textproto.MIMEHeader{}
	head, content, found := bytes.Cut(b, []byte("\r\n\r\n"))
	if !found {
		return h, b
	}
	for _, line := range strings.Split(string(head), "\r\n") {
		if k, v, ok := strings.Cut(line, ": "); ok {
			h.Set(k, v)
		}
	}
	return h, content
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
