package rtphdr

import (
	"fmt"

	"github.com/pion/rtcp"
)

const maxSDESText = 255

// SDESItems are the source description items sent with every report. CNAME
// is mandatory; empty optional items are left out.
type SDESItems struct {
	CNAME string `yaml:"cname"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
	Loc   string `yaml:"loc"`
	Tool  string `yaml:"tool"`
	Note  string `yaml:"note"`
}

// BuildSDES builds a one-chunk SDES packet for ssrc.
func BuildSDES(ssrc uint32, items SDESItems) (*rtcp.SourceDescription, error) {
	if items.CNAME == "" {
		return nil, fmt.Errorf("%w: SDES requires CNAME", ErrInvalidArgument)
	}

	fields := []struct {
		typ  rtcp.SDESType
		text string
	}{
		{rtcp.SDESCNAME, items.CNAME},
		{rtcp.SDESName, items.Name},
		{rtcp.SDESEmail, items.Email},
		{rtcp.SDESPhone, items.Phone},
		{rtcp.SDESLocation, items.Loc},
		{rtcp.SDESTool, items.Tool},
		{rtcp.SDESNote, items.Note},
	}

	chunk := rtcp.SourceDescriptionChunk{Source: ssrc}
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		if len(f.text) > maxSDESText {
			return nil, fmt.Errorf("%w: SDES item %d longer than %d bytes", ErrInvalidArgument, f.typ, maxSDESText)
		}
		chunk.Items = append(chunk.Items, rtcp.SourceDescriptionItem{Type: f.typ, Text: f.text})
	}

	return &rtcp.SourceDescription{Chunks: []rtcp.SourceDescriptionChunk{chunk}}, nil
}
