package client

import "httpcore/application/http/semantic"

type Options struct {
	Parse semantic.ParseOptions
}

var DefaultOptions = Options{
	Parse: semantic.DefaultParseOptions,
}
