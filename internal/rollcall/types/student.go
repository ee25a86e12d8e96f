package types

type Student struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
