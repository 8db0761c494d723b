package main

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corefs/corefs/pkg/corefs"
	"github.com/corefs/corefs/pkg/wire"
)

var shellCmd = &cobra.Command{
	Use:   "shell <image>",
	Short: "Mount an image and open an interactive shell over it",
	Long: `Mounts the image and exercises the file API from an interactive prompt:
put/get copy files between the host and the image, ls/cat/rm list, read, and
remove entries, and exit unmounts cleanly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(args[0])
	},
}

func runShell(path string) error {

	img, err := openImage(path)
	if err != nil {
		return err
	}
	defer img.Close()

	totalBlocks := uint32(img.Size() / wire.BlockSize)

	c := corefs.New()
	if err := c.Mount(img, totalBlocks, wallClock, log); err != nil {
		return err
	}
	defer func() {
		if err := c.Unmount(); err != nil {
			log.Errorf("unmount: %v", err)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	printf("corefs shell -- %s (type 'help' for commands)", path)

	for {
		fmt.Print("corefs> ")
		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			printf("commands: ls, cat <path>, put <host-file> <path>, get <path> <host-file>, rm <path>, exists <path>, exit")
		case "exit", "quit":
			return nil
		case "ls":
			if err := shellLs(c); err != nil {
				log.Errorf("ls: %v", err)
			}
		case "cat":
			if len(fields) != 2 {
				log.Errorf("usage: cat <path>")
				continue
			}
			if err := shellCat(c, fields[1]); err != nil {
				log.Errorf("cat: %v", err)
			}
		case "put":
			if len(fields) != 3 {
				log.Errorf("usage: put <host-file> <path>")
				continue
			}
			if err := shellPut(c, fields[1], fields[2]); err != nil {
				log.Errorf("put: %v", err)
			}
		case "get":
			if len(fields) != 3 {
				log.Errorf("usage: get <path> <host-file>")
				continue
			}
			if err := shellGet(c, fields[1], fields[2]); err != nil {
				log.Errorf("get: %v", err)
			}
		case "rm":
			if len(fields) != 2 {
				log.Errorf("usage: rm <path>")
				continue
			}
			if err := c.Unlink(fields[1]); err != nil {
				log.Errorf("rm: %v", err)
			}
		case "exists":
			if len(fields) != 2 {
				log.Errorf("usage: exists <path>")
				continue
			}
			printf("%v", c.Exists(fields[1]))
		default:
			log.Errorf("unknown command %q (try 'help')", fields[0])
		}
	}

	return nil

}

func shellLs(c *corefs.Context) error {

	names, err := c.List()
	if err != nil {
		return err
	}

	sort.Strings(names)
	for _, name := range names {
		printf("%s", name)
	}

	return nil

}

func shellCat(c *corefs.Context, path string) error {

	f, err := c.Open(path, corefs.RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := f.Snapshot()
	if err != nil {
		return err
	}

	os.Stdout.Write(data)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Println()
	}

	return nil

}

func shellPut(c *corefs.Context, hostPath, path string) error {

	data, err := ioutil.ReadFile(hostPath)
	if err != nil {
		return err
	}

	f, err := c.Open(path, corefs.CREAT|corefs.WRONLY|corefs.TRUNC)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return err
	}

	printf("wrote %d bytes to %s", n, path)

	return nil

}

func shellGet(c *corefs.Context, path, hostPath string) error {

	f, err := c.Open(path, corefs.RDONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := f.Snapshot()
	if err != nil {
		return err
	}

	if err := ioutil.WriteFile(hostPath, data, 0644); err != nil {
		return err
	}

	printf("read %d bytes from %s", len(data), path)

	return nil

}
