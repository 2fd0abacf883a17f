package files

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"reflect"
	"strconv"
	"strings"

	pt "github.com/activecm/rita-pdns/parser/parsetypes"
	"github.com/activecm/rita-pdns/util"
	"github.com/pkg/errors"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

// GatherLogFiles reads the files and directories looking for log and gz files
func GatherLogFiles(paths []string, logger *log.Logger) []string {
	var toReturn []string

	for _, path := range paths {
		if util.IsDir(path) {
			toReturn = append(toReturn, gatherDir(path, logger)...)
		} else if strings.HasSuffix(path, ".gz") ||
			strings.HasSuffix(path, ".log") {
			toReturn = append(toReturn, path)
		} else {
			logger.WithFields(log.Fields{
				"path": path,
			}).Warn("Ignoring non .log or .gz file")
		}
	}

	return toReturn
}

// gatherDir reads the directory looking for dns log and .gz files
func gatherDir(cpath string, logger *log.Logger) []string {
	var toReturn []string
	entries, err := os.ReadDir(cpath)
	if err != nil {
		logger.WithFields(log.Fields{
			"error": err.Error(),
			"path":  cpath,
		}).Error("Error when reading directory")
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "dns") {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".gz") ||
			strings.HasSuffix(entry.Name(), ".log") {
			toReturn = append(toReturn, path.Join(cpath, entry.Name()))
		}
	}
	return toReturn
}

// OpenLogFile opens a zeek log for reading, decompressing it on the fly when
// the name ends in .gz. The returned closer releases the file and any
// decompression process.
func OpenLogFile(filePath string) (reader io.Reader, closer func() error, err error) {
	fileHandle, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}

	if strings.HasSuffix(filePath, ".gz") {
		return newGzipReader(fileHandle)
	}
	return fileHandle, fileHandle.Close, nil
}

// NewLogScanner returns a line scanner with room for long zeek log lines
func NewLogScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

//newGzipReader returns an un-gzipped byte stream given a gzip compressed byte stream.
//This method tries to use the system's pigz or gzip implementation before relying on
//Golang's gzip package (as it is quite slow). Returns stream to read from, a function to
//close the underlying stream, and any err that may occur when opening the stream.
func newGzipReader(fileHandle io.ReadCloser) (reader io.Reader, closer func() error, err error) {
	// by default just close out the underlying file handle
	// works for built in gzip library and error cases
	closer = fileHandle.Close

	var gzipPath string
	if path, err := exec.LookPath("pigz"); err == nil {
		gzipPath = path
	} else if path, err := exec.LookPath("gzip"); err == nil {
		gzipPath = path
	} else {
		// can't find system command, use golang lib, no special closing logic needed other than
		// to close the underlying file descriptor
		reader, err = gzip.NewReader(fileHandle)
		if err != nil {
			fileHandle.Close()
			return nil, nil, err
		}
		return reader, closer, nil
	}

	// create the subprocess
	ctx, cancel := context.WithCancel(context.Background())
	gzipCommand := exec.CommandContext(ctx, gzipPath, "-d", "-c")

	// tell the subprocess to read from the given stream
	gzipCommand.Stdin = fileHandle

	// return/ pipe the output back out to the caller
	pipeR, err := gzipCommand.StdoutPipe()
	if err != nil {
		cancel()
		fileHandle.Close()
		return nil, nil, err
	}

	var cmdStdErr bytes.Buffer
	gzipCommand.Stderr = &cmdStdErr

	if err := gzipCommand.Start(); err != nil {
		cancel()
		fileHandle.Close()
		return nil, nil, err
	}

	// update the closer to kill the subprocess in addition to closing the file descriptor
	closer = func() error {
		// kill the subprocess, any errors will come out on the read side or during Wait
		cancel()
		// close the file that was passed in
		errFile := fileHandle.Close()
		// wait for the subprocess to finish out
		errProc := gzipCommand.Wait()

		// add StdErr to the process error if the command returned a nonzero code
		if errProc != nil && cmdStdErr.Len() > 0 {
			errProc = fmt.Errorf("%s: %s", errProc.Error(), strings.TrimSpace(cmdStdErr.String()))
		}

		// handle return errors up
		if errProc != nil && errFile != nil {
			return fmt.Errorf("%s; %s", errProc.Error(), errFile.Error())
		}
		if errProc != nil {
			return errProc
		}
		if errFile != nil {
			return errFile
		}
		return nil
	}

	return pipeR, closer, nil
}

// ScanTSVHeader scans the comment lines out of a bro file and returns a
// BroHeader object containing the information. NOTE: This has the side
// effect of advancing the fileScanner so that fileScanner.Text() will
// return the first log entry in the file. hasData reports whether such
// an entry exists.
func ScanTSVHeader(fileScanner *bufio.Scanner) (header *BroHeader, hasData bool, err error) {
	toReturn := newBroHeader()
	for fileScanner.Scan() {
		if len(fileScanner.Bytes()) < 1 {
			continue
		}
		//On the comment lines
		if fileScanner.Bytes()[0] == '#' {
			line := strings.Fields(fileScanner.Text())
			if len(line) < 2 {
				continue
			}
			switch line[0][1:] {
			case "separator":
				toReturn.Separator, err = strconv.Unquote("\"" + line[1] + "\"")
				if err != nil || toReturn.Separator == "" {
					return toReturn, false, errors.Errorf("could not decode separator %q", line[1])
				}
			case "set_separator":
				toReturn.SetSep = line[1]
			case "empty_field":
				toReturn.Empty = line[1]
			case "unset_field":
				toReturn.Unset = line[1]
			case "fields":
				toReturn.Names = line[1:]
			case "types":
				toReturn.Types = line[1:]
			case "path":
				toReturn.ObjType = line[1]
			}
		} else {
			//We are done parsing the comments
			hasData = true
			break
		}
	}

	if err := fileScanner.Err(); err != nil {
		return toReturn, false, err
	}

	if len(toReturn.Names) == 0 {
		return toReturn, false, ErrNoHeader
	}

	if len(toReturn.Names) != len(toReturn.Types) {
		return toReturn, false, errors.New("name / type mismatch")
	}
	return toReturn, hasData, nil
}

// MapZeekHeaderToParseType matches the fields named in the header with the
// fields of the BroData the factory creates. A brotype tag may list several
// acceptable zeek types separated by "|".
func MapZeekHeaderToParseType(header *BroHeader, broDataFactory func() pt.BroData, logger *log.Logger) (ZeekHeaderIndexMap, error) {
	broData := broDataFactory()
	structType := reflect.TypeOf(broData).Elem()

	indexMap := ZeekHeaderIndexMap{
		NthLogFieldExistsInParseType: make([]bool, len(header.Names)),
		NthLogFieldParseTypeOffset:   make([]int, len(header.Names)),
	}

	// parseTypeFieldInfo and the parseTypeFields map record the names, types, and offsets of the
	// Zeek fields we want to populate the broData with. Recording this info in a map allows
	// us to match the Zeek header to the parse type fields without nested loops.
	type parseTypeFieldInfo struct {
		zeekTypes            []string
		parseTypeFieldOffset int
	}
	// parseTypeFields maps from Zeek field names to the associated info as defined by the
	// broData struct tags
	parseTypeFields := make(map[string]parseTypeFieldInfo)

	// walk the fields of the broData, making sure the broData struct has
	// an equal number of named bro fields and bro types
	for i := 0; i < structType.NumField(); i++ {
		structField := structType.Field(i)
		zeekName := structField.Tag.Get("bro")
		zeekType := structField.Tag.Get("brotype")

		//If this field is not associated with bro, skip it
		if len(zeekName) == 0 && len(zeekType) == 0 {
			continue
		}

		if len(zeekName) == 0 || len(zeekType) == 0 {
			return indexMap, errors.New("incomplete bro variable")
		}

		parseTypeFields[zeekName] = parseTypeFieldInfo{
			zeekTypes:            strings.Split(zeekType, "|"),
			parseTypeFieldOffset: i,
		}
	}

	for index, name := range header.Names {
		fieldInfo, ok := parseTypeFields[name]
		if !ok {
			//an unmatched field which exists in the log but not the struct
			//is not a fatal error, so we skip it
			continue
		}

		if !util.StringInSlice(header.Types[index], fieldInfo.zeekTypes) {
			logger.WithFields(log.Fields{
				"error":         ErrTypeMismatch.Error(),
				"field":         name,
				"type in log":   header.Types[index],
				"expected type": strings.Join(fieldInfo.zeekTypes, " or "),
			}).Error("Unable to map zeek header to parser")
			return indexMap, errors.Wrapf(ErrTypeMismatch, "field %s has type %s", name, header.Types[index])
		}

		indexMap.NthLogFieldExistsInParseType[index] = true
		indexMap.NthLogFieldParseTypeOffset[index] = fieldInfo.parseTypeFieldOffset
	}

	return indexMap, nil
}

//ParseJSONLine creates a new BroData from a line of a Zeek JSON log.
func ParseJSONLine(lineBuffer []byte, broDataFactory func() pt.BroData) (pt.BroData, error) {
	dat := broDataFactory()
	err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(lineBuffer, dat)
	if err != nil {
		return nil, err
	}
	dat.Normalize()
	return dat, nil
}

func parseTSVField(fieldText string, fieldType string, setSep string, targetField reflect.Value, logger *log.Logger) {
	switch fieldType {
	case pt.Time:
		ts, err := pt.ParseEpoch(fieldText)
		if err != nil {
			logger.WithFields(log.Fields{
				"error": err.Error(),
				"value": fieldText,
			}).Debug("Couldn't convert unix ts")
			return
		}
		targetField.Set(reflect.ValueOf(pt.Timestamp{Time: ts}))
	case pt.String:
		fallthrough
	case pt.Enum:
		fallthrough
	case pt.Addr:
		targetField.SetString(fieldText)
	case pt.StringSet:
		fallthrough
	case pt.EnumSet:
		fallthrough
	case pt.StringVector:
		fallthrough
	case pt.IntervalVector:
		tokens := strings.Split(fieldText, setSep)
		targetField.Set(reflect.ValueOf(tokens).Convert(targetField.Type()))
	default:
		logger.WithFields(log.Fields{
			"error": "Unhandled type",
			"value": fieldType,
		}).Error("Encountered unhandled type in log")
	}
}

//ParseTSVLine creates a new BroData from a line of a Zeek TSV log.
//String matching is generally faster than byte matching in Golang for some reason, so we take use a string
//rather than bytes here.
func ParseTSVLine(lineString string, header *BroHeader,
	fieldMap ZeekHeaderIndexMap, broDataFactory func() pt.BroData,
	logger *log.Logger) pt.BroData {

	if strings.HasPrefix(lineString, "#") {
		return nil
	}

	dat := broDataFactory()
	data := reflect.ValueOf(dat).Elem()

	tokenEndIdx := strings.Index(lineString, header.Separator)
	tokenCounter := 0
	for tokenEndIdx != -1 && tokenCounter < len(header.Names) {
		//fields not in the struct will not be parsed
		if lineString[:tokenEndIdx] != header.Empty && lineString[:tokenEndIdx] != header.Unset {
			// we map from the field's index in the file header
			// to the offsets in the broData using the NthLogFieldParseTypeOffset array.
			if fieldMap.NthLogFieldExistsInParseType[tokenCounter] {
				parseTSVField(
					lineString[:tokenEndIdx],
					header.Types[tokenCounter],
					header.SetSep,
					data.Field(fieldMap.NthLogFieldParseTypeOffset[tokenCounter]),
					logger,
				)
			}
		}

		// chomp off the portion we just parsed
		lineString = lineString[tokenEndIdx+len(header.Separator):]
		tokenEndIdx = strings.Index(lineString, header.Separator)
		tokenCounter++
	}

	//handle last field
	if tokenCounter < len(header.Names) && lineString != header.Empty && lineString != header.Unset {
		if fieldMap.NthLogFieldExistsInParseType[tokenCounter] {
			parseTSVField(
				lineString,
				header.Types[tokenCounter],
				header.SetSep,
				data.Field(fieldMap.NthLogFieldParseTypeOffset[tokenCounter]),
				logger,
			)
		}
	}

	dat.Normalize()
	return dat
}
