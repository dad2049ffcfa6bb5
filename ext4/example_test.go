package ext4_test

import (
	"fmt"
	"log"

	"github.com/anuejn/ext4-image-writer/ext4"
	"github.com/anuejn/ext4-image-writer/testhelper"
)

func Example() {
	// write into memory; any backend.Device works, e.g. backend/file over
	// an image file or block device
	dev := testhelper.NewBlockDevice()

	w, err := ext4.Create(dev, 128<<30, nil)
	if err != nil {
		log.Fatal(err)
	}
	if err := w.MkdirAll("var/log"); err != nil {
		log.Fatal(err)
	}
	if err := w.WriteFile([]byte("hello, world\n"), "var/log/hello.txt", 0o644); err != nil {
		log.Fatal(err)
	}
	if err := w.Symlink("hello.txt", "var/log/greeting"); err != nil {
		log.Fatal(err)
	}
	if err := w.Finalize(); err != nil {
		log.Fatal(err)
	}

	fmt.Println(len(dev.Blocks) > 0)
	// Output: true
}
