package export

// FitScale returns the uniform shrink factor that makes content fit the available height.
// Content that already fits keeps scale 1. The result never drops below minimumScale; content
// that would need more shrinking overflows instead.
func FitScale(contentHeight, availableHeight, minimumScale float64) float64 {
	if minimumScale <= 0 || minimumScale > 1 {
		minimumScale = 1
	}
	if contentHeight <= 0 || availableHeight <= 0 || contentHeight <= availableHeight {
		return 1
	}
	scale := availableHeight / contentHeight
	if scale < minimumScale {
		return minimumScale
	}
	return scale
}

// Overflows reports whether the document does not fit even at its applied scale.
func (d *Document) Overflows() bool {
	return d.ContentHeight*d.Scale > d.AvailableHeight+1e-9
}
