package similarity

// CompareRequest is the body of POST /api/images/similarity.
// Either both inline images or both URLs must be supplied.
type CompareRequest struct {
	FirstImage     string `json:"first_image" validate:"required_without=FirstImageURL"`
	SecondImage    string `json:"second_image" validate:"required_with=FirstImage,required_without=SecondImageURL"`
	FirstImageURL  string `json:"first_image_url" validate:"required_with=SecondImageURL,omitempty,http_url"`
	SecondImageURL string `json:"second_image_url" validate:"required_with=FirstImageURL,omitempty,http_url"`
}

// UsesURLs reports whether images must be downloaded.
func (r CompareRequest) UsesURLs() bool {
	return r.FirstImage == "" && r.SecondImage == ""
}
