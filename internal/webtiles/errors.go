package webtiles

import (
	"fmt"

	"github.com/crawlbeem/beem/internal/shared"
)

var (
	errLoginFailed  = fmt.Errorf("%w: webtiles login_fail", shared.ErrAuthFailed)
	errLoginTimeout = fmt.Errorf("%w: webtiles login did not complete in time", shared.ErrConnectFailed)
)
