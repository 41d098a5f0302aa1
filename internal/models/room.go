package models

// ParticipantInfo is the public view of a connected participant
type ParticipantInfo struct {
	Ref      string `json:"ref"`      // Connection id, used as signaling address
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Stroke is one line segment drawn on a room's whiteboard
type Stroke struct {
	X0    float64 `json:"x0" dynamodbav:"x0"`
	Y0    float64 `json:"y0" dynamodbav:"y0"`
	X1    float64 `json:"x1" dynamodbav:"x1"`
	Y1    float64 `json:"y1" dynamodbav:"y1"`
	Color string  `json:"color" dynamodbav:"color"`
	Width float64 `json:"width" dynamodbav:"width"`
}

// FileMeta describes a file stored by the external file service
type FileMeta struct {
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// RoomInfo is returned by the room lookup endpoint
type RoomInfo struct {
	ID               string            `json:"id"`
	Participants     []ParticipantInfo `json:"participants"`
	ParticipantCount int               `json:"participantCount"`
	StrokeCount      int               `json:"strokeCount"`
}
