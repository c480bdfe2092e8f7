// Package dataprocess manages code related to the data-saving process.
package dataprocess

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	pc "go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-posegraph/posegraph"
)

const (
	// SlamTimeFormat is the timestamp format used in the dataprocess.
	SlamTimeFormat = "2006-01-02T15:04:05.0000Z"

	// fullConfidence marks a point as certainly occupied, encoded in the blue channel.
	fullConfidence = 100
	metresToMM     = 1000
)

// nodePosesHeader is the header row of node pose exports.
var nodePosesHeader = []string{"id", "x", "y", "theta"}

// CreateTimestampFilename creates an absolute filename with a primary sensor name and timestamp written
// into the filename.
func CreateTimestampFilename(dataDirectory, primarySensorName, fileType string, timeStamp time.Time) string {
	return filepath.Join(dataDirectory, primarySensorName+"_data_"+timeStamp.UTC().Format(SlamTimeFormat)+fileType)
}

// MapToPointCloud converts a planar map in metres to a point cloud in millimetres on the z=0 plane.
// Added points are marked red in addition to their confidence.
func MapToPointCloud(mapPoints, added []r2.Point) (pc.PointCloud, error) {
	cloud := pc.NewWithPrealloc(len(mapPoints) + len(added))
	for _, p := range mapPoints {
		if err := cloud.Set(toMM(p), pc.NewColoredData(color.NRGBA{B: fullConfidence})); err != nil {
			return nil, err
		}
	}
	for _, p := range added {
		if err := cloud.Set(toMM(p), pc.NewColoredData(color.NRGBA{B: fullConfidence, R: fullConfidence})); err != nil {
			return nil, err
		}
	}
	return cloud, nil
}

func toMM(p r2.Point) r3.Vector {
	return r3.Vector{X: p.X * metresToMM, Y: p.Y * metresToMM}
}

// EncodePCD encodes a planar map as a binary PCD.
func EncodePCD(mapPoints, added []r2.Point) ([]byte, error) {
	cloud, err := MapToPointCloud(mapPoints, added)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := pc.ToPCD(cloud, buf, pc.PCDBinary); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePCDToFile encodes the pointcloud and then saves it to the passed filename.
func WritePCDToFile(pointcloud pc.PointCloud, filename string) error {
	buf := new(bytes.Buffer)
	if err := pc.ToPCD(pointcloud, buf, pc.PCDBinary); err != nil {
		return err
	}
	return WriteBytesToFile(buf.Bytes(), filename)
}

// WriteNodePosesCSV writes the estimated pose of every node as id,x,y,theta rows.
func WriteNodePosesCSV(nodes []posegraph.Node, filename string) error {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := w.Write(nodePosesHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		row := []string{
			strconv.Itoa(n.ID),
			strconv.FormatFloat(n.EstimatedPose.X(), 'f', -1, 64),
			strconv.FormatFloat(n.EstimatedPose.Y(), 'f', -1, 64),
			strconv.FormatFloat(n.EstimatedPose.Angle, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, "encoding node poses")
	}
	return WriteBytesToFile(buf.Bytes(), filename)
}

// WriteBytesToFile writes the passed bytes to the passed filename.
func WriteBytesToFile(bytes []byte, filename string) error {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(bytes); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
