package content

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind identifies the variant of an Item
type Kind string

const (
	KindText       Kind = "text"
	KindPhoto      Kind = "photo"
	KindLocation   Kind = "location"
	KindAudio      Kind = "audio"
	KindDocument   Kind = "document"
	KindMediaGroup Kind = "media_group"
)

// Item is one piece of outbound content. Only the fields relevant to Kind are set.
// In the catalog a bare string is shorthand for a text item.
type Item struct {
	Kind    Kind     `yaml:"type" json:"type"`
	Text    string   `yaml:"text,omitempty" json:"text,omitempty"`
	FileID  string   `yaml:"file_id,omitempty" json:"file_id,omitempty"`
	Caption string   `yaml:"caption,omitempty" json:"caption,omitempty"`
	Lat     float64  `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lng     float64  `yaml:"lng,omitempty" json:"lng,omitempty"`
	Media   []Item   `yaml:"media,omitempty" json:"media,omitempty"`
	Markup  []string `yaml:"markup,omitempty" json:"markup,omitempty"` // reply keyboard shown with this item
}

// Text returns a text item
func Text(s string) Item {
	return Item{Kind: KindText, Text: s}
}

// Photo returns a photo item referencing a transport file id or URL
func Photo(ref, caption string) Item {
	return Item{Kind: KindPhoto, FileID: ref, Caption: caption}
}

// Location returns a map pin item
func Location(lat, lng float64) Item {
	return Item{Kind: KindLocation, Lat: lat, Lng: lng}
}

// Audio returns an audio item
func Audio(ref string) Item {
	return Item{Kind: KindAudio, FileID: ref}
}

// Document returns a document item
func Document(ref, caption string) Item {
	return Item{Kind: KindDocument, FileID: ref, Caption: caption}
}

// MediaGroup returns an album of items delivered together
func MediaGroup(items ...Item) Item {
	return Item{Kind: KindMediaGroup, Media: items}
}

// UnmarshalYAML accepts either a plain string or a typed mapping.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*it = Text(node.Value)
		return nil
	}

	type rawItem Item
	var raw rawItem
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*it = Item(raw)
	if it.Kind == "" {
		it.Kind = KindText
	}
	if err := it.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Validate checks that the fields required by Kind are present.
func (it Item) Validate() error {
	switch it.Kind {
	case KindText:
		if it.Text == "" {
			return fmt.Errorf("text item has no text")
		}
	case KindPhoto, KindAudio, KindDocument:
		if it.FileID == "" {
			return fmt.Errorf("%s item has no file_id", it.Kind)
		}
	case KindLocation:
		if it.Lat == 0 && it.Lng == 0 {
			return fmt.Errorf("location item has no coordinates")
		}
	case KindMediaGroup:
		if len(it.Media) == 0 {
			return fmt.Errorf("media_group item has no media")
		}
		for i, m := range it.Media {
			if m.Kind == KindMediaGroup || m.Kind == KindLocation || m.Kind == KindText {
				return fmt.Errorf("media_group entry %d: %s cannot be grouped", i, m.Kind)
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("media_group entry %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown item type %q", it.Kind)
	}
	return nil
}

// IsText reports whether the item carries plain text only
func (it Item) IsText() bool {
	return it.Kind == KindText
}
