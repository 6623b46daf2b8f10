package config

import (
	_ "github.com/any-hub/img-hub/internal/manipulator/backend/imaging"
	_ "github.com/any-hub/img-hub/internal/manipulator/backend/xdraw"
)
