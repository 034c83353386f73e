// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedSigningAlgorithm(t *testing.T) {
	type args struct {
		algs []Alg
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name: "supported signing algorithms",
			args: args{
				algs: []Alg{RS256, RS384, RS512, ES256, ES384, ES512, PS256, PS384, PS512, EdDSA},
			},
		},
		{
			name: "unsupported signing algorithm none",
			args: args{
				algs: []Alg{Alg("none")},
			},
			wantErr: true,
		},
		{
			name: "unsupported symmetric algorithm",
			args: args{
				algs: []Alg{RS256, Alg("HS256")},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SupportedSigningAlgorithm(tt.args.algs...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func Test_joseAlgorithms(t *testing.T) {
	assert := assert.New(t)
	assert.Len(joseAlgorithms(), len(supportedAlgorithms))
	got := joseAlgorithms(ES256)
	assert.Len(got, 1)
	assert.Equal(string(ES256), string(got[0]))
}
