package layout

import "errors"

var ErrInvalidPieceSize = errors.New("invalid piece size (must be positive)")
