package dataset

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"go.viam.com/vio/logging"
	"go.viam.com/vio/sensors"
)

const imuCSV = `#timestamp [ns],w_RS_S_x [rad s^-1],w_RS_S_y [rad s^-1],w_RS_S_z [rad s^-1],a_RS_S_x [m s^-2],a_RS_S_y [m s^-2],a_RS_S_z [m s^-2]
1000000000,0.1,0.2,0.3,0,0,9.81
1005000000,0.1,0.2,0.3,0,0,9.81
1010000000, 0.1, 0.2, 0.3, 0.5, 0, 9.81
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	img.SetGray(3, 2, color.Gray{Y: 200})
	test.That(t, imaging.Save(img, path), test.ShouldBeNil)
}

func TestDirs(t *testing.T) {
	imageDir, imuDir, err := Dirs(EuRoC, "/data", "MH_01_easy", 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, imageDir, test.ShouldEqual, "/data/MH_01_easy/mav0/cam1/data")
	test.That(t, imuDir, test.ShouldEqual, "/data/MH_01_easy/mav0/imu0")

	imageDir, imuDir, err = Dirs(TUMVI, "/data", "room1", 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, imageDir, test.ShouldEqual, "/data/dataset-room1_512_16/mav0/cam0/data")
	test.That(t, imuDir, test.ShouldEqual, "/data/dataset-room1_512_16/mav0/imu0")

	imageDir, imuDir, err = Dirs(Flat, "/data", "seq", 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, imageDir, test.ShouldEqual, "/data/seq/cam0/data")
	test.That(t, imuDir, test.ShouldEqual, "/data/seq/imu0")

	_, _, err = Dirs("kitti", "/data", "seq", 0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "kitti")
}

func TestOpenEuRoC(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "MH_01", "mav0")
	writeFile(t, filepath.Join(base, "imu0", "data.csv"), imuCSV)
	writeFile(t, filepath.Join(base, "cam0", "data.csv"), "#timestamp [ns],filename\n1005000000,1005000000.png\n1012000000,1012000000.png\n")
	writeImage(t, filepath.Join(base, "cam0", "data", "1005000000.png"))
	writeImage(t, filepath.Join(base, "cam0", "data", "1012000000.png"))

	loader, err := Open(EuRoC, root, "MH_01", 0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.Size(), test.ShouldEqual, 5)

	var kinds []sensors.Kind
	var stamps []time.Duration
	for i := 0; i < loader.Size(); i++ {
		r, err := loader.Get(i)
		test.That(t, err, test.ShouldBeNil)
		kinds = append(kinds, r.Kind)
		stamps = append(stamps, r.Timestamp())
	}
	test.That(t, kinds, test.ShouldResemble, []sensors.Kind{
		sensors.KindInertial, sensors.KindInertial, sensors.KindImage, sensors.KindInertial, sensors.KindImage,
	})
	test.That(t, stamps[1], test.ShouldEqual, 1005*time.Millisecond)
	test.That(t, stamps[4], test.ShouldEqual, 1012*time.Millisecond)

	r, err := loader.Get(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Inertial.Accel.X, test.ShouldEqual, 0.5)
	test.That(t, r.Inertial.Gyro.Z, test.ShouldEqual, 0.3)

	r, err = loader.Get(2)
	test.That(t, err, test.ShouldBeNil)
	img, err := loader.Image(r.Visual)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 8)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 6)

	_, err = loader.Get(5)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = loader.Get(-1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOpenWithoutFrameList(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "seq")
	writeFile(t, filepath.Join(base, "imu0", "data.csv"), imuCSV)
	writeImage(t, filepath.Join(base, "cam0", "data", "1002000000.png"))

	loader, err := Open(Flat, root, "seq", 0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loader.Size(), test.ShouldEqual, 4)
	r, err := loader.Get(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r.Kind, test.ShouldEqual, sensors.KindImage)
	test.That(t, r.Visual.Path, test.ShouldEqual, filepath.Join(base, "cam0", "data", "1002000000.png"))
}

func TestLoaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	root := t.TempDir()

	_, err := NewLoader(filepath.Join(root, "cam0", "data"), filepath.Join(root, "imu0"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	// An empty image directory lists no frames, leaving the inertial file as the only error.
	test.That(t, os.MkdirAll(filepath.Join(root, "cam0", "data"), 0o755), test.ShouldBeNil)
	writeFile(t, filepath.Join(root, "imu0", "data.csv"), "1000,0.1,0.2\n")
	_, err = NewLoader(filepath.Join(root, "cam0", "data"), filepath.Join(root, "imu0"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "expected 7 fields")

	writeFile(t, filepath.Join(root, "imu0", "data.csv"), "abc,0,0,0,0,0,0\n")
	_, err = NewLoader(filepath.Join(root, "cam0", "data"), filepath.Join(root, "imu0"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bad timestamp")

	writeFile(t, filepath.Join(root, "imu0", "data.csv"), imuCSV)
	writeFile(t, filepath.Join(root, "cam0", "data", "not-a-time.png"), "")
	_, err = NewLoader(filepath.Join(root, "cam0", "data"), filepath.Join(root, "imu0"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	loader := &Loader{}
	_, err = loader.Image(sensors.VisualSample{Path: filepath.Join(root, "missing.png")})
	test.That(t, err, test.ShouldNotBeNil)
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	got, err := loader.Image(sensors.VisualSample{Image: img})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, img)
}
