package transfer

type FFprobeResponse struct {
	Streams []FFprobeStream `json:"streams"`
}

type FFprobeStream struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
