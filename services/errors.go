package services

import "errors"

// Общие ошибки, используемые в сервисах и маппинге HTTP.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameInvalidStatus = errors.New("invalid game status provided")
	ErrGameInvalidResult = errors.New("invalid game result")
	ErrGameUpdateFailed  = errors.New("failed to update game")
)
