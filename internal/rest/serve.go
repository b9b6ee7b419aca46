// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest serves the shaving pipeline over HTTP.
package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/balco-astro/balco/internal/codec"
	"github.com/balco-astro/balco/internal/config"
	"github.com/balco-astro/balco/internal/fits"
	"github.com/balco-astro/balco/internal/logging"
	"github.com/balco-astro/balco/internal/ops"
	"github.com/balco-astro/balco/internal/shave"
)

// Largest accepted upload
const MaxBodyBytes = 1 << 30

// A REST server. Defaults for requests come from the configuration
type Server struct {
	Config *config.Config
	Log    io.Writer
}

func NewServer(cfg *config.Config, log io.Writer) *Server {
	return &Server{Config: cfg, Log: log}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.Log), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/shave", s.postShave)
			v1.POST("/batch", s.postBatch)
		}
	}
	return r
}

// Listens and serves on the given address until the server fails
func (s *Server) Serve(addr string) error {
	fmt.Fprintf(s.Log, "Listening on %s\n", addr)
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Shaving parameters from the query, with the configuration as default
func (s *Server) shaveParams(c *gin.Context) (p shave.Params, cat string, err error) {
	p, cat = s.Config.Shave, ""
	if v := c.Query("bits"); v != "" {
		if p.Bits, err = strconv.Atoi(v); err != nil {
			return p, cat, fmt.Errorf("%w: bits %q", shave.ErrInvalidParameter, v)
		}
	}
	if v := c.Query("mode"); v != "" {
		if p.Mode, err = shave.ParseMode(v); err != nil {
			return p, cat, err
		}
	}
	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return p, cat, fmt.Errorf("%w: threshold %q", shave.ErrInvalidParameter, v)
		}
		p.Threshold = float32(t)
	}
	if p.Mode.NeedsCatalog() {
		cat = c.DefaultQuery("catalog", config.CatalogDetect)
	}
	return p, cat, p.Validate()
}

// Shaves the FITS image in the request body and returns the shaved FITS image.
// Bodies may be compressed, as declared by Content-Encoding
func (s *Server) postShave(c *gin.Context) {
	p, cat, err := s.shaveParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enc, err := codec.ParseCodec(c.GetHeader("Content-Encoding"))
	if err != nil {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		return
	}
	body, err := codec.NewReader(enc, http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer body.Close()

	var log bytes.Buffer
	ctx := ops.NewContext(&log, 1, s.Config.Processing.MemoryFraction)
	ctx.RestrictPaths = true

	f := fits.NewImage()
	f.FileName = "upload"
	if err := f.Read(body, true, &log); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op := ops.NewOpShave(p, cat, s.Config.Star)
	res, err := op.Apply(f, ctx)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shave.ErrInvalidParameter) || errors.Is(err, fits.ErrIO) {
			status = http.StatusBadRequest
		} else if errors.Is(err, ops.ErrPathNotAllowed) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error(), "log": log.String()})
		return
	}

	var out bytes.Buffer
	if err := res.Write(&out, &log); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "log": log.String()})
		return
	}
	fmt.Fprint(s.Log, log.String())
	c.Header("X-Balco-Bits", strconv.Itoa(p.Bits))
	c.Header("X-Balco-Mode", p.Mode.String())
	c.Data(http.StatusOK, "application/fits", out.Bytes())
}

type postBatchArgs struct {
	FilePatterns []string        `json:"filePatterns"`
	PerImage     *ops.OpSequence `json:"perImage"` // per image pipeline, defaults to the configured one
}

// Runs a batch on files below the working directory and streams the log
func (s *Server) postBatch(c *gin.Context) {
	logWriter := c.Writer
	var args postBatchArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(args.FilePatterns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file patterns"})
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	seq := ops.NewBatch(s.Config, args.FilePatterns)
	if args.PerImage != nil {
		seq = ops.NewOpSequence(ops.NewOpLoadMany(args.FilePatterns), ops.NewOpForEach(args.PerImage))
	}
	ctx := ops.NewContext(logging.NewSyncWriter(logWriter), s.Config.Processing.MaxThreads, s.Config.Processing.MemoryFraction)
	ctx.RestrictPaths = true

	failed, err := ops.RunBatch(seq, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	} else if failed > 0 {
		fmt.Fprintf(logWriter, "Error: %d images failed\n", failed)
	}
	logWriter.Flush()
}
