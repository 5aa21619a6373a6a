package quote

import "errors"

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports the first invalid field of a request.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Spanish messages surfaced to the caller verbatim.
const (
	msgRequired        = "El campo %s es requerido"
	msgNotText         = "El campo %s debe ser un texto"
	msgWeightNumber    = "El peso debe ser un número válido"
	msgWeightMin       = "El peso debe ser mayor o igual a 0.1 kg"
	msgWeightMax       = "El peso no puede ser mayor a 1000 kg"
	msgDateRequired    = "La fecha de recolección es requerida y debe ser una fecha válida"
	msgDateBeforeToday = "La fecha de recolección no puede ser anterior a hoy"
	msgDateTooFar      = "La fecha de recolección no puede ser mayor a 30 días"
	msgFragileBool     = "El campo fragile debe ser booleano"
)
