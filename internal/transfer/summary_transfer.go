package transfer

type SummaryResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
