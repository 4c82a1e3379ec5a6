package utils

import (
	"fmt"
)

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded turns an error into a panic that the Recovery middleware renders.
func PanicIfNeeded(err any) {
	if err != nil {
		if e, ok := err.(error); ok {
			panic(e)
		}
		panic(fmt.Sprintf("%v", err))
	}
}
