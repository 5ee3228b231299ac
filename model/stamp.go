package model

// StampRequest is one pending stamp action for the current cycle
type StampRequest struct {
	DocumentID    int     `json:"document_id"`
	StampType     string  `json:"stamp_type"`
	DisplayText   string  `json:"display_text"`
	StampDate     string  `json:"stamp_date,omitempty"` // empty omits the date line
	SequenceIndex int     `json:"sequence_index"`
	Color         string  `json:"color"`
	Opacity       float64 `json:"opacity"`
}

// HasDate reports whether a date line is rendered
func (r *StampRequest) HasDate() bool {
	return r.StampDate != ""
}

// StampPlacement is the page geometry computed for one request.
// Coordinates are in points on the visible page, origin bottom-left.
type StampPlacement struct {
	AnchorX        float64 `json:"anchor_x"` // fraction of page width
	AnchorY        float64 `json:"anchor_y"` // fraction of page height, measured from the top
	VerticalOffset float64 `json:"vertical_offset"`
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	BoxWidth       float64 `json:"box_width"`  // axis-aligned extent after tilt
	BoxHeight      float64 `json:"box_height"` // axis-aligned extent after tilt
	TiltDegrees    float64 `json:"tilt_degrees"`
	CenterX        float64 `json:"center_x"`
	CenterY        float64 `json:"center_y"`
	Color          string  `json:"color"`
	Opacity        float64 `json:"opacity"`
}

// Top returns the highest y covered by the tilted stamp
func (p StampPlacement) Top() float64 {
	return p.CenterY + p.BoxHeight/2
}

// Bottom returns the lowest y covered by the tilted stamp
func (p StampPlacement) Bottom() float64 {
	return p.CenterY - p.BoxHeight/2
}

// Right returns the rightmost x covered by the tilted stamp
func (p StampPlacement) Right() float64 {
	return p.CenterX + p.BoxWidth/2
}

// Overlaps reports whether two placements share any vertical span
func (p StampPlacement) Overlaps(o StampPlacement) bool {
	return p.Bottom() < o.Top() && o.Bottom() < p.Top()
}
