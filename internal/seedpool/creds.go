package seedpool

import (
	"crypto/tls"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

func insecureCreds() credentials.TransportCredentials {
	return insecure.NewCredentials()
}

func tlsCreds(cfg *tls.Config) credentials.TransportCredentials {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	return credentials.NewTLS(cfg)
}
