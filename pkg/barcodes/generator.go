// Package barcodes generates the unique numeric codes printed on copies and
// renders them as Code128 images.
package barcodes

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/config"
	"github.com/shishobooks/circulate/pkg/errcodes"
)

const DefaultLength = 12

// Source yields integers in [0, n).
type Source interface {
	Intn(n int) int
}

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type cryptoSource struct{}

func (cryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is gone.
		panic(errors.Wrap(err, "failed to read random digit"))
	}
	return int(v.Int64())
}

type GeneratorOptions struct {
	Length int
	// MaxAttempts bounds GenerateUnique. Zero means no bound.
	MaxAttempts int
	ImageWidth  int
	ImageHeight int
	// Source defaults to crypto/rand.
	Source Source
}

type Generator struct {
	length      int
	maxAttempts int
	imageWidth  int
	imageHeight int
	source      Source
}

func NewGenerator(opts GeneratorOptions) *Generator {
	src := opts.Source
	if src == nil {
		src = cryptoSource{}
	}
	return &Generator{
		length:      opts.Length,
		maxAttempts: opts.MaxAttempts,
		imageWidth:  opts.ImageWidth,
		imageHeight: opts.ImageHeight,
		source:      src,
	}
}

func NewGeneratorFromConfig(cfg *config.Config) *Generator {
	return NewGenerator(GeneratorOptions{
		Length:      cfg.BarcodeLength,
		MaxAttempts: cfg.BarcodeMaxAttempts,
		ImageWidth:  cfg.BarcodeImageWidth,
		ImageHeight: cfg.BarcodeImageHeight,
	})
}

// Generate draws one code of the configured length, each digit independently
// and uniformly from 0-9.
func (g *Generator) Generate() (string, error) {
	if g.length <= 0 {
		return "", errcodes.ConfigurationError(fmt.Sprintf("Barcode length must be positive, got %d.", g.length))
	}
	var sb strings.Builder
	sb.Grow(g.length)
	for i := 0; i < g.length; i++ {
		sb.WriteByte(byte('0' + g.source.Intn(10)))
	}
	return sb.String(), nil
}

// GenerateUnique draws codes until exists reports one as free. It returns a
// configuration error instead of a duplicate when MaxAttempts runs out.
func (g *Generator) GenerateUnique(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 1; ; attempt++ {
		code, err := g.Generate()
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", errors.WithStack(err)
		}
		if !taken {
			return code, nil
		}

		if g.maxAttempts > 0 && attempt >= g.maxAttempts {
			return "", errcodes.ConfigurationError(fmt.Sprintf("Could not generate a unique barcode after %d attempts.", attempt))
		}
		if err := ctx.Err(); err != nil {
			return "", errors.WithStack(err)
		}
	}
}

// Render draws code at the configured image size.
func (g *Generator) Render(code string) ([]byte, error) {
	return Render(code, g.imageWidth, g.imageHeight)
}

// Valid reports whether code looks like something a copy could carry.
func Valid(code string) bool {
	if code == "" || len(code) > 250 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Filename is the storage name of a code's image.
func Filename(code string) string {
	return "barcode_" + code + ".png"
}
